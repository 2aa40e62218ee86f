// Package local persists the state record as a file on the local filesystem.
package local

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/release-notes-watcher/internal/state"
)

// Config captures the parameters for the file-backed store.
type Config struct {
	// BaseDir is the directory holding the state file.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Object is the file name inside BaseDir.
	Object string `mapstructure:"object" yaml:"object"`
}

// Store keeps the hash in a single file. The generation is a digest of the
// file's modification time and contents, so two writes inside one coarse
// mtime tick still get distinct generations unless they store the same hash.
// Preconditions are only enforced between callers sharing this Store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New validates the directory and returns a Store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if strings.ContainsRune(cfg.Object, filepath.Separator) || cfg.Object == "." || cfg.Object == ".." {
		return nil, fmt.Errorf("object name must be a plain file name")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{path: filepath.Join(cfg.BaseDir, cfg.Object)}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// PreviousHash reads the state file. A missing file is not an error.
func (s *Store) PreviousHash(_ context.Context) (state.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// SetHash atomically replaces the state file.
func (s *Store) SetHash(_ context.Context, hash string, prev *state.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev != nil {
		current, err := s.read()
		if err != nil {
			return err
		}
		if current.Found != prev.Found || (prev.Found && current.Generation != prev.Generation) {
			return state.ErrConflict
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(hash); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (s *Store) read() (state.State, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state.State{}, nil
		}
		return state.State{}, fmt.Errorf("stat state file: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return state.State{}, fmt.Errorf("read state file: %w", err)
	}
	return state.State{
		Hash:       strings.TrimSpace(string(data)),
		Generation: generation(info.ModTime().UnixNano(), data),
		Found:      true,
	}, nil
}

func generation(mtime int64, data []byte) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(mtime))
	_, _ = h.Write(buf[:])
	_, _ = h.Write(data)
	// Zero means "unknown" to callers; keep generations positive.
	return int64(h.Sum64()>>1) | 1
}
