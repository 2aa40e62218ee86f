package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/release-notes-watcher/internal/state"
)

func TestStoreStartsEmpty(t *testing.T) {
	t.Parallel()

	store := NewStore()
	got, err := store.PreviousHash(context.Background())
	if err != nil {
		t.Fatalf("PreviousHash() error = %v", err)
	}
	if got.Found || got.Hash != "" {
		t.Fatalf("expected absent state, got %+v", got)
	}
}

func TestStoreConditionalWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	empty, err := store.PreviousHash(ctx)
	if err != nil {
		t.Fatalf("PreviousHash() error = %v", err)
	}
	if err := store.SetHash(ctx, "abc", &empty); err != nil {
		t.Fatalf("first SetHash() error = %v", err)
	}
	if err := store.SetHash(ctx, "stale", &empty); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("expected conflict for stale absent precondition, got %v", err)
	}

	current, err := store.PreviousHash(ctx)
	if err != nil {
		t.Fatalf("PreviousHash() error = %v", err)
	}
	if current.Hash != "abc" || !current.Found {
		t.Fatalf("unexpected state %+v", current)
	}
	if err := store.SetHash(ctx, "def", &current); err != nil {
		t.Fatalf("SetHash() with fresh generation error = %v", err)
	}
	if err := store.SetHash(ctx, "ghi", &current); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("expected conflict for stale generation, got %v", err)
	}
	if err := store.SetHash(ctx, "forced", nil); err != nil {
		t.Fatalf("unconditional SetHash() error = %v", err)
	}
	if store.Writes() != 3 {
		t.Fatalf("expected 3 writes, got %d", store.Writes())
	}
}
