// Package notifier fans a processed change out to every configured sink.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/metrics"
	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// Sink is a named notifier.
type Sink struct {
	Name     string
	Notifier watcher.Notifier
}

// Fanout delivers a change to each sink in order. Every sink is attempted;
// failures are joined into the returned error.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout builds a Fanout over sinks, skipping nil notifiers.
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Notifier != nil {
			kept = append(kept, s)
		}
	}
	return &Fanout{sinks: kept, logger: logger}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Notify implements watcher.Notifier.
func (f *Fanout) Notify(ctx context.Context, change watcher.Change) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Notifier.Notify(ctx, change); err != nil {
			metrics.ObserveNotification(sink.Name, false)
			f.logger.Warn("notification failed",
				zap.String("sink", sink.Name),
				zap.String("run_id", change.RunID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
			continue
		}
		metrics.ObserveNotification(sink.Name, true)
		f.logger.Info("notification sent", zap.String("sink", sink.Name), zap.String("run_id", change.RunID))
	}
	return errors.Join(errs...)
}
