package hop

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway is the only component allowed to issue group actions. All calls
// are fire-and-forget; outcomes come back asynchronously as Events.
type Gateway interface {
	RequestHop()
	AcceptInvite(host string)
	DeclineInvite(host string)
	LeaveGroup()
	SendWhisper(host, text string)
}

// Notifier receives read-only session snapshots. It must never feed
// information back into the engine.
type Notifier interface {
	OnSessionStateChanged(Snapshot)
}

// fastLeaveRetryS is the retry cadence while still inside the leave grace
// window; after the window the slow cadence from Params applies.
const fastLeaveRetryS = 2.0

// Engine drives the hop attempt lifecycle. It is single-threaded and
// event-driven: the owner serializes all calls to Handle and Advance onto
// one goroutine, and the engine never reads the wall clock itself.
type Engine struct {
	params  Params
	gw      Gateway
	mem     *HostMemory
	signals *SignalCollector
	notify  Notifier
	log     *zap.SugaredLogger

	now       float64
	continent Continent
	gen       uint64
	sess      *session
	timers    []timer

	leavePending bool
	leaveSince   float64

	// Zone transfer seen mid-session; applied once the session ends so the
	// continent stays fixed for the session's lifetime.
	pendingContinent *Continent

	// Re-entrancy guard: a transition handler that synchronously triggers
	// another event (a decline bouncing straight back as a new invite) gets
	// its event queued, not nested.
	dispatching bool
	queue       []Event
}

// NewEngine wires the state machine to its collaborators. The initial
// continent is the Azeroth pool until the first zone event arrives.
func NewEngine(params Params, gw Gateway, mem *HostMemory, signals *SignalCollector, notify Notifier, log *zap.SugaredLogger) *Engine {
	return &Engine{
		params:    params.Sanitize(),
		gw:        gw,
		mem:       mem,
		signals:   signals,
		notify:    notify,
		log:       log,
		continent: ContinentAzeroth,
		gen:       1,
	}
}

// Now returns the engine's current clock reading in seconds.
func (e *Engine) Now() float64 { return e.now }

// Continent returns the client's current layer pool.
func (e *Engine) Continent() Continent { return e.continent }

// State returns the current lifecycle position.
func (e *Engine) State() State {
	if e.sess == nil {
		return StateIdle
	}
	return e.sess.state
}

// Advance moves the engine clock to now, firing any due timers in order.
// Each timer fires with the clock set to its exact deadline so deadline
// semantics do not depend on tick granularity.
func (e *Engine) Advance(now float64) {
	for {
		idx := -1
		for i, t := range e.timers {
			if t.at <= now && (idx == -1 || t.at < e.timers[idx].at) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		t := e.timers[idx]
		e.timers = append(e.timers[:idx], e.timers[idx+1:]...)
		if t.at > e.now {
			e.now = t.at
		}
		e.Handle(evTimer{kind: t.kind, gen: t.gen})
	}
	if now > e.now {
		e.now = now
	}
}

// Handle is the single entry point for all events. Events arriving while a
// transition is in flight are queued and processed in arrival order once the
// current transition completes.
func (e *Engine) Handle(ev Event) {
	e.queue = append(e.queue, ev)
	if e.dispatching {
		return
	}
	e.dispatching = true
	defer func() { e.dispatching = false }()
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.dispatch(next)
	}
}

func (e *Engine) dispatch(ev Event) {
	switch ev := ev.(type) {
	case EvHopRequested:
		e.onHopRequested()
	case EvCancel:
		e.onCancel()
	case EvInviteReceived:
		e.onInvite(ev.Host, ev.Payload)
	case EvPeerMessage:
		e.onPeerMessage(ev.Host, ev.Text)
	case EvGroupDisbanded:
		e.onGroupDisbanded()
	case EvGroupLeft:
		e.leavePending = false
	case EvZoneChanged:
		e.onZoneChanged(ev.ZoneID)
	case EvSignal:
		e.onSignal(ev)
	case evTimer:
		e.onTimer(ev)
	}
}

/* --------------------------- event handlers --------------------------- */

func (e *Engine) onHopRequested() {
	if e.sess != nil {
		// Singleton session: a second request is rejected, never queued.
		e.log.Infow("hop request ignored, attempt already active", "state", e.sess.state)
		return
	}
	e.sess = &session{
		id:        uuid.NewString(),
		state:     StateSearching,
		startedAt: e.now,
	}
	e.gw.RequestHop()
	e.log.Infow("searching for a hop", "continent", e.continent)
	e.emit("")
}

func (e *Engine) onCancel() {
	if e.sess == nil || !e.sess.state.active() {
		return
	}
	if e.grouped() {
		e.beginLeave()
	}
	e.sess.state = StateCancelled
	e.log.Infow("hop cancelled by user", "host", e.sess.host)
	e.emit("")
	e.endSession()
}

func (e *Engine) onInvite(host, payload string) {
	key := HostKey(host, e.continent)

	if e.grouped() {
		if host == e.sess.host {
			// Re-invite from the current host: ignore so the timer is not
			// restarted.
			return
		}
		// One hop at a time. Benign decline, not a penalty.
		e.gw.DeclineInvite(host)
		e.mem.Remember(key, OutcomeDeclined, e.now, e.params.DeclinedTTLS)
		return
	}

	if rec, ok := e.mem.Lookup(key, e.now); ok && e.mem.ShouldAutoDecline(key, e.now) {
		e.gw.DeclineInvite(host)
		// Refresh so a spamming host stays gated for a full TTL.
		e.mem.Remember(key, rec.Outcome, e.now, rec.ExpiresAt-rec.RecordedAt)
		e.log.Debugw("invite auto-declined", "host", host, "outcome", rec.Outcome)
		return
	}

	res := ParseMessage(payload)
	if res.Continent != ContinentUnknown && res.Continent != e.continent {
		e.declineCrossContinent(host, key)
		return
	}

	e.acceptInvite(host, res)
}

func (e *Engine) declineCrossContinent(host, key string) {
	e.gw.DeclineInvite(host)
	e.gw.SendWhisper(host, fmt.Sprintf(
		"LayerHop: sorry, I'm on %s and layer pools don't cross continents.", e.continent))
	e.mem.Remember(key, OutcomeCrossContinent, e.now, e.params.CrossContinentTTLS)

	if e.sess == nil {
		// Unsolicited invite while idle; nothing to retry.
		return
	}
	if e.sess.retriesUsed >= e.params.MaxRetries {
		e.fail(FailRetryBudget, "retry budget exhausted")
		return
	}
	e.sess.retriesUsed++
	e.log.Infow("cross-continent invite declined, still searching",
		"host", host, "retries_used", e.sess.retriesUsed)
	e.emit("")
}

func (e *Engine) acceptInvite(host string, res ParseResult) {
	if e.sess == nil {
		// Unsolicited invite accepted straight from idle.
		e.sess = &session{
			id:        uuid.NewString(),
			state:     StateSearching,
			startedAt: e.now,
		}
	}
	s := e.sess
	s.host = host
	s.targetLayer = res.Layer

	if obs := e.signals.Observe(e.now); obs != nil {
		s.baseline = *obs
	} else {
		// Synthetic unknown baseline: confirmation will then require an
		// explicit target layer match, never a bare "something differs".
		s.baseline = LayerEstimate{Continent: e.continent, ObservedAt: e.now, Source: SourceProximity}
	}
	s.joinedAt = e.now
	s.sawSignal = false
	s.state = StateJoined

	e.gw.AcceptInvite(host)
	e.schedule(timerSettle, e.params.SettleDelayS)
	e.schedule(timerHopTimeout, e.params.HopTimeoutS)
	e.log.Infow("joined host group",
		"host", host, "target_layer", res.Layer, "baseline", s.baseline.Layer)
	e.emit("")
}

func (e *Engine) onPeerMessage(host, text string) {
	if e.sess == nil || e.sess.host != host {
		return
	}
	res := ParseMessage(text)
	if res.Layer != nil && e.sess.targetLayer == nil {
		e.sess.targetLayer = res.Layer
		e.log.Debugw("target layer learned from host message", "host", host, "layer", *res.Layer)
		e.emit("")
	}
}

func (e *Engine) onGroupDisbanded() {
	// If we were mid-leave, the disband settles it for us.
	e.leavePending = false
	if !e.grouped() {
		return
	}
	e.fail(FailGroupDisbanded, "the host's group disbanded")
}

func (e *Engine) onZoneChanged(zoneID int) {
	next := ClassifyZone(zoneID)
	if next == e.continent {
		return
	}
	if e.sess != nil {
		// Continent is pinned for the lifetime of an attempt; apply the
		// transfer once the session ends.
		e.log.Warnw("zone change deferred during active hop", "zone", zoneID)
		e.pendingContinent = &next
		return
	}
	e.setContinent(next, zoneID)
}

func (e *Engine) onSignal(ev EvSignal) {
	if ev.Layer == nil {
		// A signal without a number carries no information; ingesting it
		// would displace a known estimate from the same source.
		return
	}
	est := LayerEstimate{
		Layer:      ev.Layer,
		Continent:  e.continent,
		ObservedAt: e.now,
		Source:     ev.Source,
	}
	e.signals.Ingest(est)

	if e.sess == nil {
		return
	}
	if e.grouped() && est.ObservedAt > e.sess.joinedAt {
		e.sess.sawSignal = true
	}
	if e.sess.state == StateVerifying {
		e.tryConfirm(est)
	}
}

func (e *Engine) onTimer(t evTimer) {
	if t.gen != 0 && t.gen != e.gen {
		return // stale: armed by an earlier session
	}
	switch t.kind {
	case timerSettle:
		if e.sess != nil && e.sess.state == StateJoined {
			e.sess.state = StateVerifying
			e.emit("")
			// A signal may already have landed during the settle window.
			if obs := e.signals.Observe(e.now); obs != nil {
				e.tryConfirm(*obs)
			}
			if e.sess != nil {
				delay := e.sess.joinedAt + e.params.ReminderAfterS - e.now
				if delay < 0 {
					delay = 0
				}
				e.schedule(timerReminder, delay)
			}
		}
	case timerHopTimeout:
		if e.grouped() {
			if e.sess.sawSignal {
				e.fail(FailTimeout, "layer unchanged")
			} else {
				e.fail(FailTimeout, "timed out waiting for a layer signal")
			}
		}
	case timerReminder:
		if e.grouped() && !e.sess.sawSignal {
			e.emit("no layer signal yet, try moving near other players")
			e.schedule(timerReminder, e.params.ReminderEveryS)
		}
	case timerLeaveRetry:
		if !e.leavePending {
			return
		}
		e.gw.LeaveGroup()
		delay := e.params.LeaveRetryEveryS
		if e.now-e.leaveSince < e.params.LeaveGraceS {
			delay = fastLeaveRetryS
		}
		e.scheduleLeaveRetry(delay)
	}
}

/* ----------------------------- transitions ---------------------------- */

// tryConfirm applies the confirmation rule: a post-join estimate whose layer
// matches the known target, or differs from a known baseline. Elapsed time
// alone never confirms, and an unknown baseline never confirms by itself.
func (e *Engine) tryConfirm(est LayerEstimate) {
	s := e.sess
	if s == nil || s.state != StateVerifying {
		return
	}
	if !est.Known() || est.ObservedAt <= s.joinedAt {
		return
	}
	matched := s.targetLayer != nil && *est.Layer == *s.targetLayer
	differs := s.baseline.Known() && *est.Layer != *s.baseline.Layer
	if !matched && !differs {
		return
	}

	host := s.host
	s.state = StateConfirmed
	e.beginLeave()
	e.mem.Remember(HostKey(host, e.continent), OutcomeRecentlyHopped, e.now, e.params.RecentHopTTLS)
	e.gw.SendWhisper(host, "LayerHop: thanks for the hop!")
	e.log.Infow("hop confirmed",
		"host", host, "layer", *est.Layer, "source", est.Source,
		"elapsed", e.now-s.joinedAt)
	e.emit("")
	e.endSession()
}

func (e *Engine) fail(reason FailReason, note string) {
	s := e.sess
	if s == nil {
		return
	}
	if e.grouped() {
		e.beginLeave()
	}
	s.state = StateFailed
	e.log.Infow("hop failed", "host", s.host, "reason", reason, "note", note)
	e.emitFail(reason, note)
	e.endSession()
}

// endSession destroys the session and bumps the generation so any timer
// still in flight for it becomes a no-op.
func (e *Engine) endSession() {
	e.sess = nil
	e.gen++
	if e.pendingContinent != nil {
		next := *e.pendingContinent
		e.pendingContinent = nil
		e.setContinent(next, -1)
	}
}

func (e *Engine) setContinent(next Continent, zoneID int) {
	e.continent = next
	e.signals.Reset()
	e.log.Infow("continent changed", "zone", zoneID, "continent", next)
}

// grouped reports whether we are currently in the host's group.
func (e *Engine) grouped() bool {
	return e.sess != nil && (e.sess.state == StateJoined || e.sess.state == StateVerifying)
}

// beginLeave issues the leave action and arms the background retry loop,
// which is decoupled from session state and survives endSession.
func (e *Engine) beginLeave() {
	e.gw.LeaveGroup()
	if !e.leavePending {
		e.leavePending = true
		e.leaveSince = e.now
		e.scheduleLeaveRetry(fastLeaveRetryS)
	}
}

/* ------------------------------- timers ------------------------------- */

func (e *Engine) schedule(kind timerKind, delay float64) {
	e.timers = append(e.timers, timer{at: e.now + delay, kind: kind, gen: e.gen})
}

func (e *Engine) scheduleLeaveRetry(delay float64) {
	e.timers = append(e.timers, timer{at: e.now + delay, kind: timerLeaveRetry, gen: 0})
}

/* ----------------------------- snapshots ------------------------------ */

// Snapshot returns the current read-only view, usable outside the engine
// goroutine only as a value copy.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshot("", FailNone)
}

func (e *Engine) snapshot(note string, reason FailReason) Snapshot {
	snap := Snapshot{
		State:     e.State().String(),
		Continent: e.continent.String(),
		Note:      note,
	}
	if reason != FailNone {
		snap.FailReason = reason.String()
	}
	if s := e.sess; s != nil {
		snap.SessionID = s.id
		snap.Host = s.host
		snap.TargetLayer = s.targetLayer
		snap.BaselineLayer = s.baseline.Layer
		snap.ElapsedSeconds = e.now - s.startedAt
		snap.RetriesUsed = s.retriesUsed
	}
	return snap
}

func (e *Engine) emit(note string) {
	if e.notify != nil {
		e.notify.OnSessionStateChanged(e.snapshot(note, FailNone))
	}
}

func (e *Engine) emitFail(reason FailReason, note string) {
	if e.notify != nil {
		e.notify.OnSessionStateChanged(e.snapshot(note, reason))
	}
}
