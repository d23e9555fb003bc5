package hop

// SignalSource identifies which producer an estimate came from.
type SignalSource int

const (
	// SourceProximity is a layer number inferred from identifiers of nearby entities.
	SourceProximity SignalSource = iota
	// SourcePeerReport is a layer number reported by a cooperating peer addon.
	SourcePeerReport
	// SourceSelfWhisper is a layer number the client derived from its own whisper.
	SourceSelfWhisper
)

func (s SignalSource) String() string {
	switch s {
	case SourceProximity:
		return "proximity"
	case SourcePeerReport:
		return "peer_report"
	case SourceSelfWhisper:
		return "self_whisper"
	}
	return "unknown"
}

// priority orders sources for exact-timestamp ties. Higher wins.
// Self-derived numbers beat peer reports, which beat proximity inference.
func (s SignalSource) priority() int {
	switch s {
	case SourceSelfWhisper:
		return 3
	case SourcePeerReport:
		return 2
	case SourceProximity:
		return 1
	}
	return 0
}

// LayerEstimate is a single immutable observation of the client's layer.
// Layer is nil when the source produced a signal but no usable number
// (used for the synthetic "unknown" baseline).
type LayerEstimate struct {
	Layer      *int
	Continent  Continent
	ObservedAt float64
	Source     SignalSource
}

// Known reports whether the estimate carries an actual layer number.
func (e LayerEstimate) Known() bool { return e.Layer != nil }

// SignalCollector retains the most recent estimate per source and answers
// Observe with the freshest non-stale one overall. It never polls; producers
// push estimates as they arrive.
type SignalCollector struct {
	latest    map[SignalSource]LayerEstimate
	staleness float64
}

// NewSignalCollector builds a collector with the given staleness window in
// seconds. Estimates older than the window are not returned by Observe.
func NewSignalCollector(stalenessSeconds float64) *SignalCollector {
	return &SignalCollector{
		latest:    make(map[SignalSource]LayerEstimate),
		staleness: stalenessSeconds,
	}
}

// Ingest retains est as the latest estimate for its source, discarding it if
// an estimate from the same source is already newer.
func (c *SignalCollector) Ingest(est LayerEstimate) {
	if prev, ok := c.latest[est.Source]; ok && prev.ObservedAt > est.ObservedAt {
		return
	}
	c.latest[est.Source] = est
}

// Observe returns the freshest estimate across all sources, or nil if nothing
// has been seen within the staleness window. On an exact timestamp tie the
// higher-priority source wins.
func (c *SignalCollector) Observe(now float64) *LayerEstimate {
	var best *LayerEstimate
	for src := range c.latest {
		est := c.latest[src]
		if now-est.ObservedAt > c.staleness {
			continue
		}
		if best == nil ||
			est.ObservedAt > best.ObservedAt ||
			(est.ObservedAt == best.ObservedAt && est.Source.priority() > best.Source.priority()) {
			copied := est
			best = &copied
		}
	}
	return best
}

// Reset drops all retained estimates. Used when the client zones so estimates
// from the previous continent cannot leak into a new baseline.
func (c *SignalCollector) Reset() {
	c.latest = make(map[SignalSource]LayerEstimate)
}
