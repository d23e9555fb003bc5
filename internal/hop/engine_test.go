package hop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type whisper struct {
	host, text string
}

// fakeGateway records every outbound action for assertions.
type fakeGateway struct {
	requests int
	accepts  []string
	declines []string
	leaves   int
	whispers []whisper
}

func (g *fakeGateway) RequestHop()               { g.requests++ }
func (g *fakeGateway) AcceptInvite(host string)  { g.accepts = append(g.accepts, host) }
func (g *fakeGateway) DeclineInvite(host string) { g.declines = append(g.declines, host) }
func (g *fakeGateway) LeaveGroup()               { g.leaves++ }
func (g *fakeGateway) SendWhisper(host, text string) {
	g.whispers = append(g.whispers, whisper{host, text})
}

type fakeNotifier struct {
	snaps []Snapshot
}

func (n *fakeNotifier) OnSessionStateChanged(snap Snapshot) {
	n.snaps = append(n.snaps, snap)
}

func (n *fakeNotifier) states() []string {
	out := make([]string, len(n.snaps))
	for i, s := range n.snaps {
		out[i] = s.State
	}
	return out
}

func (n *fakeNotifier) count(state string) int {
	c := 0
	for _, s := range n.snaps {
		if s.State == state {
			c++
		}
	}
	return c
}

func newTestEngine(t *testing.T) (*Engine, *fakeGateway, *fakeNotifier, *HostMemory) {
	t.Helper()
	gw := &fakeGateway{}
	notes := &fakeNotifier{}
	mem := NewHostMemory(nil, zap.NewNop().Sugar())
	eng := NewEngine(DefaultParams(), gw, mem, NewSignalCollector(DefaultParams().StalenessWindowS), notes, zap.NewNop().Sugar())
	return eng, gw, notes, mem
}

func layer(n int) *int { return &n }

func TestScenarioConfirmedViaPeerReport(t *testing.T) {
	eng, gw, notes, mem := newTestEngine(t)

	// Baseline: proximity says layer 9 before we join anyone.
	eng.Advance(1)
	eng.Handle(EvSignal{Layer: layer(9), Source: SourceProximity})

	eng.Advance(2)
	eng.Handle(EvHopRequested{})
	require.Equal(t, StateSearching, eng.State())
	require.Equal(t, 1, gw.requests)

	eng.Handle(EvInviteReceived{Host: "Hopper-Whitemane", Payload: "heading to layer 3"})
	require.Equal(t, StateJoined, eng.State())
	require.Equal(t, []string{"Hopper-Whitemane"}, gw.accepts)

	// Settle delay elapses, then a peer report of the new layer lands 10s in.
	eng.Advance(12)
	require.Equal(t, StateVerifying, eng.State())
	eng.Handle(EvSignal{Layer: layer(3), Source: SourcePeerReport})

	assert.Equal(t, StateIdle, eng.State(), "session resets to idle after confirmation")
	assert.Equal(t, 1, notes.count("confirmed"))
	assert.GreaterOrEqual(t, gw.leaves, 1)
	require.NotEmpty(t, gw.whispers)
	assert.Equal(t, "Hopper-Whitemane", gw.whispers[len(gw.whispers)-1].host)

	rec, ok := mem.Lookup(HostKey("Hopper-Whitemane", ContinentAzeroth), 12)
	require.True(t, ok)
	assert.Equal(t, OutcomeRecentlyHopped, rec.Outcome)
	assert.Equal(t, 12.0+DefaultParams().RecentHopTTLS, rec.ExpiresAt)
}

func TestScenarioCrossContinentDecline(t *testing.T) {
	eng, gw, notes, mem := newTestEngine(t)

	eng.Handle(EvZoneChanged{ZoneID: 3483}) // Hellfire Peninsula
	require.Equal(t, ContinentOutland, eng.Continent())

	eng.Advance(5)
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Stormer-Azuresong", Payload: "hop from Azeroth, layer 2"})

	assert.Equal(t, StateSearching, eng.State(), "declined without joining")
	assert.Empty(t, gw.accepts)
	assert.Equal(t, []string{"Stormer-Azuresong"}, gw.declines)
	require.NotEmpty(t, gw.whispers, "host gets an explanation whisper")

	rec, ok := mem.Lookup(HostKey("Stormer-Azuresong", ContinentOutland), 5)
	require.True(t, ok)
	assert.Equal(t, OutcomeCrossContinent, rec.Outcome)
	assert.Equal(t, 5.0+DefaultParams().CrossContinentTTLS, rec.ExpiresAt)

	last := notes.snaps[len(notes.snaps)-1]
	assert.Equal(t, 1, last.RetriesUsed)
}

func TestScenarioHostDisbandsBeforeSignal(t *testing.T) {
	eng, gw, notes, _ := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Ditcher-Whitemane", Payload: ""})
	require.Equal(t, StateJoined, eng.State())

	// Host bails at 40s, long before the 120s deadline.
	eng.Advance(40)
	eng.Handle(EvGroupDisbanded{})

	require.Equal(t, 1, notes.count("failed"))
	var failed Snapshot
	for _, s := range notes.snaps {
		if s.State == "failed" {
			failed = s
		}
	}
	assert.Equal(t, "group_disbanded", failed.FailReason)
	assert.Equal(t, StateIdle, eng.State())

	assert.GreaterOrEqual(t, gw.leaves, 1, "leave is still issued on failure")

	// The already-armed 120s timer must not fail a second time.
	eng.Advance(130)
	assert.Equal(t, 1, notes.count("failed"))
}

// reentrantGateway simulates a transport whose decline callback synchronously
// delivers the next invite, which must be queued rather than nested.
type reentrantGateway struct {
	fakeGateway
	eng     *Engine
	pending []EvInviteReceived
}

func (g *reentrantGateway) DeclineInvite(host string) {
	g.fakeGateway.DeclineInvite(host)
	if len(g.pending) > 0 {
		next := g.pending[0]
		g.pending = g.pending[1:]
		g.eng.Handle(next)
	}
}

func TestReentrantInvitesAreQueued(t *testing.T) {
	gw := &reentrantGateway{}
	notes := &fakeNotifier{}
	mem := NewHostMemory(nil, zap.NewNop().Sugar())
	eng := NewEngine(DefaultParams(), gw, mem, NewSignalCollector(10), notes, zap.NewNop().Sugar())
	gw.eng = eng

	eng.Handle(EvZoneChanged{ZoneID: 3483})
	eng.Handle(EvHopRequested{})

	gw.pending = []EvInviteReceived{
		{Host: "B-Whitemane", Payload: "azeroth layer 2"},
		{Host: "C-Whitemane", Payload: "azeroth layer 2"},
	}
	eng.Handle(EvInviteReceived{Host: "A-Whitemane", Payload: "azeroth layer 2"})

	assert.Equal(t, []string{"A-Whitemane", "B-Whitemane", "C-Whitemane"}, gw.declines,
		"nested invites processed in arrival order after the current transition")

	maxRetries := 0
	for _, s := range notes.snaps {
		if s.RetriesUsed > maxRetries {
			maxRetries = s.RetriesUsed
		}
	}
	assert.Equal(t, 3, maxRetries)
	assert.Equal(t, StateSearching, eng.State())
}

func TestAutoDeclineIsIdempotent(t *testing.T) {
	eng, gw, notes, mem := newTestEngine(t)

	key := HostKey("Spammer-Whitemane", ContinentAzeroth)
	mem.Remember(key, OutcomeRecentlyHopped, 0, 60)

	before := len(notes.snaps)
	for i := 0; i < 5; i++ {
		eng.Handle(EvInviteReceived{Host: "Spammer-Whitemane", Payload: "layer 4"})
	}

	assert.Empty(t, gw.accepts, "no group-join action")
	assert.Len(t, gw.declines, 5)
	assert.Equal(t, StateIdle, eng.State())
	assert.Len(t, notes.snaps, before, "no state transition emitted")
}

func TestNoDoubleConfirmation(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	eng.Advance(1)
	eng.Handle(EvSignal{Layer: layer(9), Source: SourceProximity})
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Hopper-Whitemane", Payload: ""})

	eng.Advance(10)
	eng.Handle(EvSignal{Layer: layer(3), Source: SourceProximity})
	require.Equal(t, 1, notes.count("confirmed"))
	require.Equal(t, StateIdle, eng.State())

	// A second differing estimate after confirmation has no effect.
	eng.Advance(11)
	eng.Handle(EvSignal{Layer: layer(5), Source: SourcePeerReport})
	assert.Equal(t, 1, notes.count("confirmed"))
	assert.Equal(t, StateIdle, eng.State())
}

func TestTimeoutExactlyAtBoundary(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	eng.Advance(10)
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Quiet-Whitemane", Payload: "layer 7"})
	require.Equal(t, StateJoined, eng.State())

	eng.Advance(10 + 119.5)
	assert.Equal(t, StateVerifying, eng.State(), "not failed before the deadline")
	assert.Zero(t, notes.count("failed"))

	eng.Advance(10 + 120)
	assert.Equal(t, 1, notes.count("failed"))
	assert.Equal(t, StateIdle, eng.State())
}

func TestRetryBudgetExhaustion(t *testing.T) {
	eng, gw, notes, _ := newTestEngine(t)

	eng.Handle(EvZoneChanged{ZoneID: 3521}) // Zangarmarsh: Outland pool
	eng.Handle(EvHopRequested{})

	hosts := []string{"A-Whitemane", "B-Whitemane", "C-Whitemane", "D-Whitemane"}
	for _, h := range hosts {
		eng.Handle(EvInviteReceived{Host: h, Payload: "azeroth layer 1"})
	}

	assert.Equal(t, StateIdle, eng.State())
	require.Equal(t, 1, notes.count("failed"))
	var failed Snapshot
	for _, s := range notes.snaps {
		if s.State == "failed" {
			failed = s
		}
	}
	assert.Equal(t, "retry_budget_exhausted", failed.FailReason)

	maxRetries := 0
	for _, s := range notes.snaps {
		if s.RetriesUsed > maxRetries {
			maxRetries = s.RetriesUsed
		}
	}
	assert.LessOrEqual(t, maxRetries, 3, "retriesUsed never exceeds the budget")
	assert.Len(t, gw.declines, 4)
	assert.Empty(t, gw.accepts)
}

func TestUnknownBaselineIsInconclusive(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	// No signal before joining: the baseline is a synthetic unknown.
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Mystery-Whitemane", Payload: "come along"})
	require.Equal(t, StateJoined, eng.State())

	eng.Advance(10)
	eng.Handle(EvSignal{Layer: layer(5), Source: SourceProximity})
	assert.Equal(t, StateVerifying, eng.State(), "unknown baseline must not auto-confirm")
	assert.Zero(t, notes.count("confirmed"))

	// The host announces the target; a matching estimate now confirms.
	eng.Handle(EvPeerMessage{Host: "Mystery-Whitemane", Text: "we're heading to layer 5"})
	eng.Advance(11)
	eng.Handle(EvSignal{Layer: layer(5), Source: SourceProximity})
	assert.Equal(t, 1, notes.count("confirmed"))
}

func TestNilLayerSignalCarriesNoInformation(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	// A known layer, then a numberless signal from the same source. The
	// empty signal must not displace the known one.
	eng.Advance(1)
	eng.Handle(EvSignal{Layer: layer(9), Source: SourceProximity})
	eng.Advance(2)
	eng.Handle(EvSignal{Layer: nil, Source: SourceProximity})

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Hopper-Whitemane", Payload: ""})
	require.Equal(t, StateJoined, eng.State())

	var joined Snapshot
	for _, s := range notes.snaps {
		if s.State == "joined" {
			joined = s
		}
	}
	require.NotNil(t, joined.BaselineLayer, "baseline keeps the known layer")
	assert.Equal(t, 9, *joined.BaselineLayer)

	// The baseline survived, so a differing estimate still confirms.
	eng.Advance(10)
	eng.Handle(EvSignal{Layer: layer(3), Source: SourceProximity})
	assert.Equal(t, 1, notes.count("confirmed"))
}

func TestCancelLeavesWithoutPenalty(t *testing.T) {
	eng, gw, notes, mem := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Friendly-Whitemane", Payload: "layer 2"})
	eng.Advance(5)
	require.Equal(t, StateVerifying, eng.State())

	eng.Handle(EvCancel{})
	assert.Equal(t, 1, notes.count("cancelled"))
	assert.Equal(t, StateIdle, eng.State())
	assert.GreaterOrEqual(t, gw.leaves, 1)

	// No memory penalty: a fresh invite from the same host is accepted.
	_, ok := mem.Lookup(HostKey("Friendly-Whitemane", ContinentAzeroth), 5)
	assert.False(t, ok)

	// Stale timers from the cancelled session are no-ops.
	eng.Advance(200)
	assert.Zero(t, notes.count("failed"))
}

func TestSecondHopRequestRejected(t *testing.T) {
	eng, gw, _, _ := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvHopRequested{})
	assert.Equal(t, 1, gw.requests, "singleton session: second request is dropped")
}

func TestInvitesWhileVerifying(t *testing.T) {
	eng, gw, _, mem := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Current-Whitemane", Payload: "layer 2"})
	eng.Advance(5)
	require.Equal(t, StateVerifying, eng.State())

	// A re-invite from the current host is silently ignored.
	eng.Handle(EvInviteReceived{Host: "Current-Whitemane", Payload: "layer 2"})
	assert.Empty(t, gw.declines)
	assert.Len(t, gw.accepts, 1)

	// An invite from anyone else is declined outright and noted as benign.
	eng.Handle(EvInviteReceived{Host: "Other-Whitemane", Payload: "layer 9"})
	assert.Equal(t, []string{"Other-Whitemane"}, gw.declines)
	rec, ok := mem.Lookup(HostKey("Other-Whitemane", ContinentAzeroth), 5)
	require.True(t, ok)
	assert.Equal(t, OutcomeDeclined, rec.Outcome)
	assert.False(t, mem.ShouldAutoDecline(HostKey("Other-Whitemane", ContinentAzeroth), 5))
}

func TestLeaveRetriesUntilLeft(t *testing.T) {
	eng, gw, _, _ := newTestEngine(t)

	eng.Advance(1)
	eng.Handle(EvSignal{Layer: layer(9), Source: SourceProximity})
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Hopper-Whitemane", Payload: "layer 3"})

	eng.Advance(10)
	eng.Handle(EvSignal{Layer: layer(3), Source: SourcePeerReport})
	require.Equal(t, StateIdle, eng.State())

	leavesAtConfirm := gw.leaves
	require.GreaterOrEqual(t, leavesAtConfirm, 1)

	// The game keeps us grouped; leave is retried on a schedule.
	eng.Advance(30)
	assert.Greater(t, gw.leaves, leavesAtConfirm)

	eng.Handle(EvGroupLeft{})
	settled := gw.leaves
	eng.Advance(120)
	assert.Equal(t, settled, gw.leaves, "no more retries once the leave lands")
}

func TestReminderNudgesWithoutStateChange(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Quiet-Whitemane", Payload: "layer 2"})

	eng.Advance(6)
	require.Equal(t, StateVerifying, eng.State())

	found := false
	for _, s := range notes.snaps {
		if s.Note != "" && s.State == "verifying" {
			found = true
		}
	}
	assert.True(t, found, "a nudge is emitted after 5s of silence")
	assert.Equal(t, StateVerifying, eng.State())
}

func TestTimeoutDistinguishesLayerUnchanged(t *testing.T) {
	eng, _, notes, _ := newTestEngine(t)

	eng.Advance(1)
	eng.Handle(EvSignal{Layer: layer(4), Source: SourceProximity})
	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Stuck-Whitemane", Payload: ""})

	// The only signal after joining still shows the old layer.
	eng.Advance(20)
	eng.Handle(EvSignal{Layer: layer(4), Source: SourceProximity})

	eng.Advance(1 + 120)
	require.Equal(t, 1, notes.count("failed"))
	var failed Snapshot
	for _, s := range notes.snaps {
		if s.State == "failed" {
			failed = s
		}
	}
	assert.Equal(t, "timed_out", failed.FailReason)
	assert.Contains(t, failed.Note, "unchanged")
}

func TestContinentPinnedDuringAttempt(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	eng.Handle(EvHopRequested{})
	eng.Handle(EvInviteReceived{Host: "Hopper-Whitemane", Payload: "layer 2"})
	require.Equal(t, StateJoined, eng.State())

	eng.Handle(EvZoneChanged{ZoneID: 3483})
	assert.Equal(t, ContinentAzeroth, eng.Continent(), "continent fixed for the session")

	eng.Handle(EvCancel{})
	assert.Equal(t, ContinentOutland, eng.Continent(), "deferred transfer applies after the session")
}
