// Package watcher implements the change-detection pipeline: fetch the
// target page, hash its text, compare with the stored hash and, when the
// content changed, summarize it, persist the new hash and notify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/release-notes-watcher/internal/clock/system"
	"github.com/JakeFAU/release-notes-watcher/internal/id/uuid"
	"github.com/JakeFAU/release-notes-watcher/internal/metrics"
	"github.com/JakeFAU/release-notes-watcher/internal/state"
)

// Outcome describes how a successful check ended.
type Outcome string

// Check outcomes.
const (
	// OutcomeUnchanged means the page hash matched the stored hash.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeUpdated means a change was summarized, persisted and notified.
	OutcomeUpdated Outcome = "updated"
	// OutcomeSuperseded means a concurrent pass persisted first; this pass
	// skipped notification.
	OutcomeSuperseded Outcome = "superseded"
)

// Failure classes. Check wraps the underlying cause with one of these.
var (
	ErrFetch              = errors.New("fetch failed")
	ErrModelNotConfigured = errors.New("summarization model not configured")
	ErrSummarize          = errors.New("summarization failed")
	ErrPersist            = errors.New("persist state failed")
)

// DefaultCheckTimeout bounds a whole pass when Config.Timeout is unset.
const DefaultCheckTimeout = 5 * time.Minute

// Config names the page to watch.
type Config struct {
	URL string
	// Timeout bounds one pass from fetch to notify.
	Timeout time.Duration
}

// Deps are the collaborators a Watcher drives. Summarizer and Notifier may
// be nil: a nil Summarizer fails every detected change with
// ErrModelNotConfigured, a nil Notifier skips notification.
type Deps struct {
	Fetcher    Fetcher
	Extractor  Extractor
	Hasher     Hasher
	Store      state.Store
	Summarizer Summarizer
	Notifier   Notifier
	Clock      Clock
	IDs        IDGenerator
}

// Result reports what a check did.
type Result struct {
	RunID        string
	URL          string
	Outcome      Outcome
	PreviousHash string
	CurrentHash  string
	Summary      string
	Notified     bool
	NotifyErr    error
	// Shared is set when the result came from an overlapping call.
	Shared bool
}

// Watcher runs change checks against a single URL.
type Watcher struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	group  singleflight.Group
}

// New validates deps and returns a Watcher.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Watcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("target url is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCheckTimeout
	}
	return &Watcher{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}, nil
}

// URL returns the watched URL.
func (w *Watcher) URL() string {
	return w.cfg.URL
}

// Check runs one pass of the pipeline. Calls that overlap within this
// process share a single pass and its result. A started pass runs to
// completion (bounded by Config.Timeout) even if the caller's ctx is
// canceled; ctx only contributes its values.
func (w *Watcher) Check(ctx context.Context) (Result, error) {
	v, err, shared := w.group.Do(w.cfg.URL, func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.Timeout)
		defer cancel()
		return w.check(passCtx)
	})
	res, _ := v.(Result)
	res.Shared = shared
	return res, err
}

func (w *Watcher) check(ctx context.Context) (Result, error) {
	runID, err := w.deps.IDs.NewID()
	if err != nil {
		w.logger.Warn("run id generation failed", zap.Error(err))
	}
	res := Result{RunID: runID, URL: w.cfg.URL}
	logger := w.logger.With(zap.String("run_id", runID), zap.String("url", w.cfg.URL))
	logger.Info("change check started")

	snap, err := w.snapshot(ctx)
	if err != nil {
		metrics.ObserveCheck("fetch_error")
		logger.Error("error fetching url", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	res.CurrentHash = snap.Hash
	logger.Info("current content hash", zap.String("hash", snap.Hash), zap.Int("text_len", len(snap.Text)))

	prev, prevKnown := w.previous(ctx, logger)
	res.PreviousHash = prev.Hash
	if prev.Found && prev.Hash == snap.Hash {
		metrics.ObserveCheck(string(OutcomeUnchanged))
		logger.Info("no changes detected")
		res.Outcome = OutcomeUnchanged
		return res, nil
	}
	logger.Info("change detected", zap.String("previous_hash", prev.Hash), zap.Bool("first_run", prevKnown && !prev.Found))

	summary, err := w.summarize(ctx, snap.Text)
	if err != nil {
		logger.Error("summarization failed", zap.Error(err))
		return res, err
	}
	res.Summary = summary
	logger.Debug("generated summary", zap.String("summary", summary))

	var precondition *state.State
	if prevKnown {
		precondition = &prev
	}
	start := time.Now()
	err = w.deps.Store.SetHash(ctx, snap.Hash, precondition)
	metrics.ObserveStage("persist", time.Since(start))
	switch {
	case errors.Is(err, state.ErrConflict):
		metrics.ObserveCheck(string(OutcomeSuperseded))
		logger.Warn("state changed during check; another pass already processed this change")
		res.Outcome = OutcomeSuperseded
		return res, nil
	case err != nil:
		metrics.ObserveCheck("persist_error")
		logger.Error("persisting new hash failed", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	logger.Info("updated stored hash", zap.String("hash", snap.Hash))

	now := w.deps.Clock.Now()
	res.Notified, res.NotifyErr = w.notify(ctx, Change{
		RunID:        runID,
		URL:          w.cfg.URL,
		PreviousHash: prev.Hash,
		CurrentHash:  snap.Hash,
		Summary:      summary,
		DetectedAt:   now,
	}, logger)

	metrics.ObserveCheck(string(OutcomeUpdated))
	metrics.ObserveChange(now)
	res.Outcome = OutcomeUpdated
	return res, nil
}

func (w *Watcher) snapshot(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	page, err := w.deps.Fetcher.Fetch(ctx, w.cfg.URL)
	metrics.ObserveStage("fetch", time.Since(start))
	if err != nil {
		return Snapshot{}, err
	}
	text, err := w.deps.Extractor.Text(page.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("extract text: %w", err)
	}
	return Snapshot{
		URL:  page.URL,
		HTML: page.Body,
		Text: text,
		Hash: w.deps.Hasher.Hash(text),
	}, nil
}

// previous reads the stored state. A read failure degrades to "absent";
// known reports whether the read succeeded and can back a conditional write.
func (w *Watcher) previous(ctx context.Context, logger *zap.Logger) (prev state.State, known bool) {
	start := time.Now()
	prev, err := w.deps.Store.PreviousHash(ctx)
	metrics.ObserveStage("state_read", time.Since(start))
	if err != nil {
		logger.Warn("could not retrieve previous hash; treating as first run", zap.Error(err))
		return state.State{}, false
	}
	return prev, true
}

func (w *Watcher) summarize(ctx context.Context, text string) (string, error) {
	if w.deps.Summarizer == nil {
		metrics.ObserveCheck("model_missing")
		return "", ErrModelNotConfigured
	}
	start := time.Now()
	summary, err := w.deps.Summarizer.Summarize(ctx, text)
	metrics.ObserveStage("summarize", time.Since(start))
	if err != nil {
		metrics.ObserveCheck("summarize_error")
		return "", fmt.Errorf("%w: %w", ErrSummarize, err)
	}
	return summary, nil
}

func (w *Watcher) notify(ctx context.Context, change Change, logger *zap.Logger) (bool, error) {
	if w.deps.Notifier == nil {
		logger.Info("no notifier configured; skipping notification")
		return false, nil
	}
	start := time.Now()
	err := w.deps.Notifier.Notify(ctx, change)
	metrics.ObserveStage("notify", time.Since(start))
	if err != nil {
		logger.Warn("notification failed; state already persisted", zap.Error(err))
		return false, err
	}
	return true, nil
}
