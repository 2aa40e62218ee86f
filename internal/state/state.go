// Package state defines the persisted "last known hash" record and the
// store contract its backends implement.
package state

import (
	"context"
	"errors"
)

// ErrConflict is returned by SetHash when the stored record changed since it
// was read, meaning another pass already persisted a newer value.
var ErrConflict = errors.New("state changed since it was read")

// State is the last known content hash plus the backend version it was read at.
type State struct {
	Hash       string
	Generation int64
	Found      bool
}

// Store persists a single hash value.
//
// PreviousHash returns Found=false with a nil error when nothing has been
// written yet. SetHash overwrites the value; when prev is non-nil the write
// only succeeds if the stored record still matches prev, otherwise it
// returns ErrConflict. A nil prev writes unconditionally.
type Store interface {
	PreviousHash(ctx context.Context) (State, error)
	SetHash(ctx context.Context, hash string, prev *State) error
}
