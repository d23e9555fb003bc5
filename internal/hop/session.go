package hop

// State is the lifecycle position of the hop attempt.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateJoined
	StateVerifying
	StateConfirmed
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateJoined:
		return "joined"
	case StateVerifying:
		return "verifying"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// active reports whether the state can still be cancelled or advanced.
func (s State) active() bool {
	return s == StateSearching || s == StateJoined || s == StateVerifying
}

// FailReason distinguishes terminal failures for the user.
type FailReason int

const (
	FailNone FailReason = iota
	// FailTimeout means the hop deadline passed with the layer unchanged.
	FailTimeout
	// FailGroupDisbanded means the host's group dissolved before the hop
	// could be confirmed.
	FailGroupDisbanded
	// FailRetryBudget means too many incompatible invites burned the budget.
	FailRetryBudget
)

func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "timed_out"
	case FailGroupDisbanded:
		return "group_disbanded"
	case FailRetryBudget:
		return "retry_budget_exhausted"
	}
	return "none"
}

// session is one hop attempt. At most one is alive at a time; the engine
// owns it exclusively and hands read-only snapshots to everyone else.
type session struct {
	id          string
	state       State
	host        string
	targetLayer *int
	baseline    LayerEstimate
	startedAt   float64
	joinedAt    float64
	retriesUsed int
	sawSignal   bool // any estimate observed since joining
}

// Snapshot is the read-only view handed to the presenter and status surface.
// It must never be used to mutate engine state.
type Snapshot struct {
	SessionID      string  `json:"session_id,omitempty"`
	State          string  `json:"state"`
	Host           string  `json:"host,omitempty"`
	TargetLayer    *int    `json:"target_layer,omitempty"`
	BaselineLayer  *int    `json:"baseline_layer,omitempty"`
	Continent      string  `json:"continent"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	RetriesUsed    int     `json:"retries_used"`
	FailReason     string  `json:"fail_reason,omitempty"`
	Note           string  `json:"note,omitempty"`
}
