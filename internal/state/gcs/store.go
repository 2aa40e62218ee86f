// Package gcs persists the state record as a single Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/release-notes-watcher/internal/state"
)

// maxStateBytes bounds how much of the object is read; a hex digest is 64 bytes.
const maxStateBytes = 4 << 10

// Config captures the parameters required to locate the state object.
type Config struct {
	Bucket string
	Object string
}

// Store reads and writes the hash object, using object generations as the
// version for conditional writes.
type Store struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed state store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// URI returns the gs:// location of the state object.
func (s *Store) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// PreviousHash downloads the stored hash. A missing object is not an error.
func (s *Store) PreviousHash(ctx context.Context) (state.State, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return state.State{}, nil
		}
		return state.State{}, fmt.Errorf("open %s: %w", s.URI(), err)
	}
	defer reader.Close() //nolint:errcheck // read-only handle

	body, err := io.ReadAll(io.LimitReader(reader, maxStateBytes))
	if err != nil {
		return state.State{}, fmt.Errorf("read %s: %w", s.URI(), err)
	}
	return state.State{
		Hash:       strings.TrimSpace(string(body)),
		Generation: reader.Attrs.Generation,
		Found:      true,
	}, nil
}

// SetHash uploads hash as the full object body.
func (s *Store) SetHash(ctx context.Context, hash string, prev *state.State) error {
	obj := s.client.Bucket(s.bucket).Object(s.object)
	if prev != nil {
		if prev.Found && prev.Generation != 0 {
			obj = obj.If(storage.Conditions{GenerationMatch: prev.Generation})
		} else if !prev.Found {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		}
	}

	writer := obj.NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if _, err := io.WriteString(writer, hash); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write %s: %w (close writer: %v)", s.URI(), err, closeErr)
		}
		return fmt.Errorf("write %s: %w", s.URI(), err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("write %s: %w", s.URI(), state.ErrConflict)
		}
		return fmt.Errorf("close writer for %s: %w", s.URI(), err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
