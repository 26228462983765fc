// Package app runs the sampling loop that turns frames into a meter total
// and publishes read-only snapshots of it.
package app

import (
	"sync"
	"time"
)

// Snapshot is a read-only copy of the meter state taken after a cycle.
type Snapshot struct {
	Session string `json:"session"` // Changes on every process start
	Phase   string `json:"phase"`

	Total       float64 `json:"total_cf"`      // Cumulative cf
	StartTotal  float64 `json:"start_cf"`      // Total when the process started
	Rate        float64 `json:"rate_cfm"`      // Last committed flow
	AverageRate float64 `json:"avg_rate_cfm"`  // Mean of recent committed flows
	Position    float64 `json:"dial_position"` // Last fast dial reading, 0-10

	Register      float64   `json:"register_ccf"` // Last accepted decade reading
	RegisterValid bool      `json:"register_valid"`
	RegisterTime  time.Time `json:"register_time"` // Frame time of Register

	LastSample time.Time `json:"last_sample"` // Frame time of the last committed sample
	Updated    time.Time `json:"updated"`

	Cycles    int `json:"cycles"`
	Committed int `json:"committed"`
	Idle      int `json:"idle"`
	Rejected  int `json:"rejected"`
	Faults    int `json:"faults"` // Register regressions
	Errors    int `json:"errors"` // Capture or decode failures

	Image []byte `json:"-"` // Last frame as JPEG
}

// Store holds the latest published snapshot. The sampler is the only
// writer; readers get copies and never block it for longer than a copy.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns the latest snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
