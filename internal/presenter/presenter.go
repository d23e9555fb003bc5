// Package presenter renders hop session snapshots as in-game toasts and a
// status widget. It is a pure consumer: nothing here feeds back into the
// engine.
package presenter

import (
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"LayerHop/internal/hop"
)

// DefaultToastDurationS is used until a persisted preference overrides it.
const DefaultToastDurationS = 5.0

// Sink is the render target, implemented by the gateway bridge.
type Sink interface {
	SendToast(text string, duration float64)
	SendStatus(snap hop.Snapshot)
}

// Presenter implements hop.Notifier.
type Presenter struct {
	sink Sink
	log  *zap.SugaredLogger

	// Toast duration is written from the prefs path (bridge goroutine) and
	// read on the engine goroutine, hence the atomic bits.
	toastDuration atomic.Uint64

	last      atomic.Pointer[hop.Snapshot]
	lastState string
}

// New builds a presenter rendering to sink.
func New(sink Sink, toastDurationS float64, log *zap.SugaredLogger) *Presenter {
	p := &Presenter{sink: sink, log: log}
	p.SetToastDuration(toastDurationS)
	return p
}

// SetToastDuration updates how long toasts stay on screen.
func (p *Presenter) SetToastDuration(seconds float64) {
	if seconds <= 0 {
		seconds = DefaultToastDurationS
	}
	p.toastDuration.Store(math.Float64bits(seconds))
}

// ToastDuration returns the current toast duration in seconds.
func (p *Presenter) ToastDuration() float64 {
	return math.Float64frombits(p.toastDuration.Load())
}

// Latest returns the most recent snapshot, or nil before the first event.
// Callers must treat it as read-only.
func (p *Presenter) Latest() *hop.Snapshot {
	return p.last.Load()
}

// OnSessionStateChanged implements hop.Notifier.
func (p *Presenter) OnSessionStateChanged(snap hop.Snapshot) {
	p.last.Store(&snap)
	p.sink.SendStatus(snap)

	if snap.Note != "" {
		p.toast(snap.Note)
	}
	if snap.State == p.lastState {
		return
	}
	p.lastState = snap.State

	switch snap.State {
	case "searching":
		p.toast("Looking for a layer hop...")
	case "joined":
		if snap.TargetLayer != nil {
			p.toast(fmt.Sprintf("Joined %s's group, heading to layer %d", snap.Host, *snap.TargetLayer))
		} else {
			p.toast(fmt.Sprintf("Joined %s's group", snap.Host))
		}
	case "verifying":
		p.toast("Waiting for the layer change to show...")
	case "confirmed":
		p.toast("Layer hop confirmed!")
	case "failed":
		p.toast("Hop failed: " + failText(snap.FailReason))
	case "cancelled":
		p.toast("Hop cancelled")
	}
}

func (p *Presenter) toast(text string) {
	p.sink.SendToast(text, p.ToastDuration())
	p.log.Infow("toast", "text", text)
}

func failText(reason string) string {
	switch reason {
	case "timed_out":
		return "no layer change detected in time"
	case "group_disbanded":
		return "the group disbanded"
	case "retry_budget_exhausted":
		return "too many incompatible hosts"
	}
	return reason
}
