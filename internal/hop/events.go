package hop

// Event is the single input type of the engine. Every external stimulus,
// whether a user action, gateway callback, or signal observation, becomes an
// Event fed through Engine.Handle.
type Event interface{ isEvent() }

// EvHopRequested is the user asking to find a hop.
type EvHopRequested struct{}

// EvCancel is explicit user cancellation of the active attempt.
type EvCancel struct{}

// EvInviteReceived is an incoming group invite. Payload is the free-text
// message the host attached, if any.
type EvInviteReceived struct {
	Host    string
	Payload string
}

// EvPeerMessage is a whisper or party message from a peer.
type EvPeerMessage struct {
	Host string
	Text string
}

// EvGroupDisbanded fires when the group dissolves under us (host left or
// kicked us) before we chose to leave.
type EvGroupDisbanded struct{}

// EvGroupLeft is the gateway confirming our own leave action took effect.
type EvGroupLeft struct{}

// EvZoneChanged reports the client moving to a new zone.
type EvZoneChanged struct {
	ZoneID int
}

// EvSignal is a raw layer observation pushed by one of the producers. The
// engine stamps it with its own clock and continent when ingesting.
type EvSignal struct {
	Layer  *int
	Source SignalSource
}

func (EvHopRequested) isEvent()   {}
func (EvCancel) isEvent()         {}
func (EvInviteReceived) isEvent() {}
func (EvPeerMessage) isEvent()    {}
func (EvGroupDisbanded) isEvent() {}
func (EvGroupLeft) isEvent()      {}
func (EvZoneChanged) isEvent()    {}
func (EvSignal) isEvent()         {}

// evTimer is the internal event a due timer is translated into.
type evTimer struct {
	kind timerKind
	gen  uint64
}

func (evTimer) isEvent() {}

type timerKind int

const (
	timerSettle timerKind = iota
	timerHopTimeout
	timerReminder
	timerLeaveRetry
)

func (k timerKind) String() string {
	switch k {
	case timerSettle:
		return "settle"
	case timerHopTimeout:
		return "hop_timeout"
	case timerReminder:
		return "reminder"
	case timerLeaveRetry:
		return "leave_retry"
	}
	return "unknown"
}

// timer is a one-shot scheduled callback. gen ties session-scoped timers to
// the session generation that armed them; a stale timer firing after the
// session ended is a no-op. Leave timers use gen 0 and outlive sessions.
type timer struct {
	at   float64
	kind timerKind
	gen  uint64
}
