package gateway

import "encoding/json"

// Frame is the JSON envelope exchanged with the in-game bridge over the
// websocket. There is no binary protocol; all peer communication rides the
// game's own chat channels, this envelope only crosses localhost.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound frame types (bridge → engine).
const (
	frameInvite         = "invite"
	framePeerMessage    = "peer_message"
	frameGroupDisbanded = "group_disbanded"
	frameGroupLeft      = "group_left"
	frameZoneChanged    = "zone_changed"
	frameEstimate       = "estimate"
	frameHopRequested   = "hop_requested"
	frameCancel         = "cancel"
	frameSetPref        = "set_pref"
)

// Outbound frame types (engine/presenter → bridge).
const (
	frameRequestHop    = "request_hop"
	frameAcceptInvite  = "accept_invite"
	frameDeclineInvite = "decline_invite"
	frameLeaveGroup    = "leave_group"
	frameSendWhisper   = "send_whisper"
	frameToast         = "toast"
	frameStatus        = "status"
)

type invitePayload struct {
	Host    string `json:"host"`
	Message string `json:"message"`
}

type peerMessagePayload struct {
	Host string `json:"host"`
	Text string `json:"text"`
}

type estimatePayload struct {
	Layer  *int   `json:"layer"`
	Source string `json:"source"`
}

type zonePayload struct {
	Zone int `json:"zone"`
}

type prefPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type hostPayload struct {
	Host string `json:"host"`
}

type whisperPayload struct {
	Host string `json:"host"`
	Text string `json:"text"`
}

type toastPayload struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration_s"`
}

func mustFrame(typ string, payload any) Frame {
	if payload == nil {
		return Frame{Type: typ}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are all plain structs; this cannot fail at runtime.
		panic(err)
	}
	return Frame{Type: typ, Payload: data}
}
