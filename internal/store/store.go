// Package store persists host records and user prefs in a small Pebble
// key-value database. Writes are non-blocking (NoSync); a background
// goroutine syncs the WAL periodically so a crash loses at most a moment of
// host memory, which expires anyway.
package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"LayerHop/internal/hop"
)

const (
	syncInterval = 250 * time.Millisecond

	hostPrefix = "host/"
	prefPrefix = "pref/"
)

// Store is a thin typed layer over Pebble. It implements hop.MemoryBackend.
type Store struct {
	db       *pebble.DB
	stopSync chan struct{}
	wg       sync.WaitGroup
}

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db, stopSync: make(chan struct{})}
	s.wg.Add(1)
	go s.syncLoop()
	return s, nil
}

func (s *Store) syncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.db.Flush()
		case <-s.stopSync:
			return
		}
	}
}

// Close stops the sync loop and closes the database.
func (s *Store) Close() error {
	close(s.stopSync)
	s.wg.Wait()
	return s.db.Close()
}

/* --------------------------- host records ----------------------------- */

// SaveHost implements hop.MemoryBackend.
func (s *Store) SaveHost(key string, rec hop.HostRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode host record: %w", err)
	}
	return s.db.Set([]byte(hostPrefix+key), data, pebble.NoSync)
}

// DeleteHost implements hop.MemoryBackend.
func (s *Store) DeleteHost(key string) error {
	return s.db.Delete([]byte(hostPrefix+key), pebble.NoSync)
}

// LoadHosts implements hop.MemoryBackend. Rows that fail to decode are
// skipped; host memory is advisory and must never block startup.
func (s *Store) LoadHosts(fn func(key string, rec hop.HostRecord)) error {
	return s.iterate(hostPrefix, func(key string, value []byte) {
		var rec hop.HostRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return
		}
		fn(key, rec)
	})
}

/* ------------------------------- prefs -------------------------------- */

// SetPref stores a user preference value.
func (s *Store) SetPref(name, value string) error {
	return s.db.Set([]byte(prefPrefix+name), []byte(value), pebble.NoSync)
}

// Pref returns a preference value, or def if unset.
func (s *Store) Pref(name, def string) string {
	value, closer, err := s.db.Get([]byte(prefPrefix + name))
	if err != nil {
		return def
	}
	defer closer.Close()
	return string(value)
}

// PrefFloat returns a numeric preference, or def when unset or malformed.
func (s *Store) PrefFloat(name string, def float64) float64 {
	raw := s.Pref(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

/* ------------------------------ internal ------------------------------- */

func (s *Store) iterate(prefix string, fn func(key string, value []byte)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		fn(string(iter.Key()[len(prefix):]), value)
	}
	return iter.Error()
}
