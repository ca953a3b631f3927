package dashboard

import (
	"sync"
	"time"

	"github.com/mamadbah2/asigest/internal/domain/models"
)

// State is what the presentation layer renders: the last applied result plus
// the error indicator of the most recent cycle.
type State struct {
	Result    *models.DashboardResult `json:"result"`
	Sequence  uint64                  `json:"sequence"`
	UpdatedAt time.Time               `json:"updated_at"`
	Stale     bool                    `json:"stale"`
	Error     string                  `json:"error,omitempty"`
}

// Store owns the displayed dashboard state. Every refresh cycle draws a
// monotonic sequence number from Begin; results and failures of a cycle older
// than the one already applied are discarded.
type Store struct {
	mu      sync.RWMutex
	next    uint64
	applied uint64
	state   State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Begin opens a new refresh cycle and returns its sequence number.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// Apply publishes the result of cycle seq. It reports false when a newer cycle
// has already been applied.
func (s *Store) Apply(seq uint64, result models.DashboardResult, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		return false
	}
	s.applied = seq
	s.state = State{
		Result:    &result,
		Sequence:  seq,
		UpdatedAt: at,
	}
	return true
}

// Fail flags cycle seq as failed with a user-facing message. The previous
// result stays visible, marked stale.
func (s *Store) Fail(seq uint64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		return false
	}
	s.applied = seq
	s.state.Stale = true
	s.state.Error = message
	return true
}

// Seed installs a result recovered from the snapshot cache. It is ignored once
// any cycle has been applied.
func (s *Store) Seed(result models.DashboardResult, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied > 0 || s.state.Result != nil {
		return false
	}
	s.state = State{Result: &result, UpdatedAt: at, Stale: true}
	return true
}

// Current returns a copy of the displayed state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
