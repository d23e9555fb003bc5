package hop

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// HostOutcome is what we last learned about a host.
type HostOutcome int

const (
	// OutcomeUnknown means we interacted with the host but learned nothing
	// disqualifying. Distinct from having no record at all.
	OutcomeUnknown HostOutcome = iota
	// OutcomeCrossContinent means the host's layer pool cannot match ours.
	OutcomeCrossContinent
	// OutcomeRecentlyHopped means we just completed a hop with this host.
	OutcomeRecentlyHopped
	// OutcomeDeclined means we turned the host down while busy elsewhere.
	OutcomeDeclined
)

func (o HostOutcome) String() string {
	switch o {
	case OutcomeCrossContinent:
		return "cross_continent"
	case OutcomeRecentlyHopped:
		return "recently_hopped"
	case OutcomeDeclined:
		return "declined"
	}
	return "unknown"
}

// HostRecord is a time-bounded note about a previously seen host.
type HostRecord struct {
	Identity   string      `json:"identity"`
	Outcome    HostOutcome `json:"outcome"`
	RecordedAt float64     `json:"recorded_at"`
	ExpiresAt  float64     `json:"expires_at"`
}

// MemoryBackend persists host records across restarts. Implementations must
// tolerate records that have already expired; HostMemory skips them on load.
type MemoryBackend interface {
	SaveHost(key string, rec HostRecord) error
	DeleteHost(key string) error
	LoadHosts(fn func(key string, rec HostRecord)) error
}

// HostKey builds the continent-and-realm-qualified identity key. The raw
// host string already carries the realm ("Name-Realm"); qualifying by
// continent keeps same-named hosts in different pools apart.
func HostKey(host string, c Continent) string {
	return fmt.Sprintf("%s|%s", c, strings.ToLower(host))
}

// HostMemory remembers recent interactions with hosts so repeat invites from
// a known-incompatible host are declined without any network action. Entries
// expire lazily on lookup; there is no background sweep.
type HostMemory struct {
	records map[string]HostRecord
	backend MemoryBackend
	log     *zap.SugaredLogger
}

// NewHostMemory builds an empty memory. backend may be nil for a purely
// in-memory instance (tests).
func NewHostMemory(backend MemoryBackend, log *zap.SugaredLogger) *HostMemory {
	return &HostMemory{
		records: make(map[string]HostRecord),
		backend: backend,
		log:     log,
	}
}

// Restore loads persisted records, skipping anything already expired at the
// given time. Called once at startup; no migration step.
func (m *HostMemory) Restore(now float64) error {
	if m.backend == nil {
		return nil
	}
	return m.backend.LoadHosts(func(key string, rec HostRecord) {
		if rec.ExpiresAt <= now {
			return
		}
		m.records[key] = rec
	})
}

// Remember upserts a record for the host, overwriting any prior entry.
func (m *HostMemory) Remember(key string, outcome HostOutcome, now, ttl float64) {
	rec := HostRecord{
		Identity:   key,
		Outcome:    outcome,
		RecordedAt: now,
		ExpiresAt:  now + ttl,
	}
	m.records[key] = rec
	if m.backend != nil {
		if err := m.backend.SaveHost(key, rec); err != nil && m.log != nil {
			m.log.Warnw("host record not persisted", "host", key, "err", err)
		}
	}
}

// Lookup returns the record for the host if present and not expired.
// Expired entries are dropped and reported as absent, never as unknown.
func (m *HostMemory) Lookup(key string, now float64) (HostRecord, bool) {
	rec, ok := m.records[key]
	if !ok {
		return HostRecord{}, false
	}
	if rec.ExpiresAt <= now {
		delete(m.records, key)
		if m.backend != nil {
			if err := m.backend.DeleteHost(key); err != nil && m.log != nil {
				m.log.Warnw("expired host record not removed", "host", key, "err", err)
			}
		}
		return HostRecord{}, false
	}
	return rec, true
}

// ShouldAutoDecline reports whether an invite from the host should be
// declined with zero network action.
func (m *HostMemory) ShouldAutoDecline(key string, now float64) bool {
	rec, ok := m.Lookup(key, now)
	if !ok {
		return false
	}
	return rec.Outcome == OutcomeCrossContinent || rec.Outcome == OutcomeRecentlyHopped
}

// Snapshot returns a copy of all live records for read-only display.
func (m *HostMemory) Snapshot(now float64) []HostRecord {
	out := make([]HostRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.ExpiresAt <= now {
			continue
		}
		out = append(out, rec)
	}
	return out
}
