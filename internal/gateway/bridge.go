// Package gateway bridges the hop engine to the in-game client. The game
// side (the addon half of LayerHop) connects to /ws and streams its group
// callbacks and layer observations as JSON frames; the engine's group
// actions flow back the same way.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LayerHop/internal/hop"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PrefSink receives preference updates pushed by the bridge.
type PrefSink func(name, value string)

// Bridge owns the single active websocket connection to the game client and
// translates frames to engine events. It implements hop.Gateway; its
// outbound methods are fire-and-forget and never block the engine loop.
type Bridge struct {
	events chan<- hop.Event
	prefs  PrefSink
	log    *zap.SugaredLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	outbound chan Frame
}

// NewBridge builds a bridge pushing translated events into events. prefs may
// be nil if preference updates are not wanted.
func NewBridge(events chan<- hop.Event, prefs PrefSink, log *zap.SugaredLogger) *Bridge {
	return &Bridge{
		events: events,
		prefs:  prefs,
		log:    log,
	}
}

// ServeWS upgrades an HTTP request into the bridge connection. A newer
// connection supersedes the old one, which is closed.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("bridge upgrade failed", "err", err)
		return
	}

	out := make(chan Frame, 64)
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
		close(b.outbound)
	}
	b.conn = conn
	b.outbound = out
	b.mu.Unlock()

	b.log.Infow("bridge connected", "remote", conn.RemoteAddr())

	go b.writePump(conn, out)
	b.readPump(conn)
}

func (b *Bridge) writePump(conn *websocket.Conn, out chan Frame) {
	for frame := range out {
		if err := conn.WriteJSON(frame); err != nil {
			b.log.Debugw("bridge write failed", "type", frame.Type, "err", err)
			return
		}
	}
}

func (b *Bridge) readPump(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			close(b.outbound)
			b.outbound = nil
		}
		b.mu.Unlock()
		conn.Close()
		b.log.Infow("bridge disconnected")
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		b.handleFrame(frame)
	}
}

func (b *Bridge) handleFrame(frame Frame) {
	switch frame.Type {
	case frameInvite:
		var p invitePayload
		if decode(frame.Payload, &p) && p.Host != "" {
			b.push(hop.EvInviteReceived{Host: p.Host, Payload: p.Message})
		}
	case framePeerMessage:
		var p peerMessagePayload
		if decode(frame.Payload, &p) && p.Host != "" {
			b.push(hop.EvPeerMessage{Host: p.Host, Text: p.Text})
		}
	case frameGroupDisbanded:
		b.push(hop.EvGroupDisbanded{})
	case frameGroupLeft:
		b.push(hop.EvGroupLeft{})
	case frameZoneChanged:
		var p zonePayload
		if decode(frame.Payload, &p) {
			b.push(hop.EvZoneChanged{ZoneID: p.Zone})
		}
	case frameEstimate:
		var p estimatePayload
		if decode(frame.Payload, &p) {
			src, ok := parseSource(p.Source)
			if !ok {
				b.log.Debugw("estimate with unknown source dropped", "source", p.Source)
				return
			}
			b.push(hop.EvSignal{Layer: p.Layer, Source: src})
		}
	case frameHopRequested:
		b.push(hop.EvHopRequested{})
	case frameCancel:
		b.push(hop.EvCancel{})
	case frameSetPref:
		var p prefPayload
		if decode(frame.Payload, &p) && b.prefs != nil {
			b.prefs(p.Name, p.Value)
		}
	default:
		b.log.Debugw("unknown bridge frame", "type", frame.Type)
	}
}

func decode(raw json.RawMessage, into any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, into) == nil
}

func parseSource(s string) (hop.SignalSource, bool) {
	switch s {
	case "proximity":
		return hop.SourceProximity, true
	case "peer_report":
		return hop.SourcePeerReport, true
	case "self_whisper":
		return hop.SourceSelfWhisper, true
	}
	return 0, false
}

func (b *Bridge) push(ev hop.Event) {
	select {
	case b.events <- ev:
	default:
		b.log.Warnw("engine event queue full, dropping", "event", ev)
	}
}

// send queues a frame for the current connection; silently dropped when the
// game client is not connected, matching the fire-and-forget contract. The
// lock is held through the non-blocking send so the channel cannot be closed
// out from under it on reconnect.
func (b *Bridge) send(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outbound == nil {
		return
	}
	select {
	case b.outbound <- frame:
	default:
		b.log.Warnw("bridge outbound queue full, dropping", "type", frame.Type)
	}
}

/* --------------------------- hop.Gateway ------------------------------- */

// RequestHop broadcasts a hop request through the game client.
func (b *Bridge) RequestHop() { b.send(mustFrame(frameRequestHop, nil)) }

// AcceptInvite accepts the pending invite from host.
func (b *Bridge) AcceptInvite(host string) {
	b.send(mustFrame(frameAcceptInvite, hostPayload{Host: host}))
}

// DeclineInvite declines the pending invite from host.
func (b *Bridge) DeclineInvite(host string) {
	b.send(mustFrame(frameDeclineInvite, hostPayload{Host: host}))
}

// LeaveGroup asks the game client to leave the current group.
func (b *Bridge) LeaveGroup() { b.send(mustFrame(frameLeaveGroup, nil)) }

// SendWhisper whispers text to host.
func (b *Bridge) SendWhisper(host, text string) {
	b.send(mustFrame(frameSendWhisper, whisperPayload{Host: host, Text: text}))
}

/* ------------------------- presenter surface --------------------------- */

// SendToast shows a transient message in-game for duration seconds.
func (b *Bridge) SendToast(text string, duration float64) {
	b.send(mustFrame(frameToast, toastPayload{Text: text, Duration: duration}))
}

// SendStatus pushes the session snapshot to the in-game status widget.
func (b *Bridge) SendStatus(snap hop.Snapshot) {
	b.send(mustFrame(frameStatus, snap))
}
