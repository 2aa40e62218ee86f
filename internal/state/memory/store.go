// Package memory keeps the state record in-process for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/release-notes-watcher/internal/state"
)

// Store implements state.Store in memory. Each write bumps the generation.
type Store struct {
	mu         sync.Mutex
	hash       string
	generation int64
	writes     int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// PreviousHash returns the stored hash, if any.
func (s *Store) PreviousHash(_ context.Context) (state.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == 0 {
		return state.State{}, nil
	}
	return state.State{Hash: s.hash, Generation: s.generation, Found: true}, nil
}

// SetHash stores hash, honoring the optional precondition.
func (s *Store) SetHash(_ context.Context, hash string, prev *state.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev != nil {
		if !prev.Found && s.generation != 0 {
			return state.ErrConflict
		}
		if prev.Found && prev.Generation != s.generation {
			return state.ErrConflict
		}
	}
	s.hash = hash
	s.generation++
	s.writes++
	return nil
}

// Writes reports how many successful writes the store has accepted.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
