package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/progress"
	"github.com/JakeFAU/yacrawler/internal/status"
)

// StatusSink folds progress events into per-run status records. Each batch
// costs one read and one write per run it touches.
type StatusSink struct {
	store  status.Store
	logger *zap.Logger
}

// NewStatusSink constructs a StatusSink writing to store.
func NewStatusSink(store status.Store, logger *zap.Logger) *StatusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusSink{store: store, logger: logger}
}

// Consume implements progress.Sink.
func (s *StatusSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	byRun := make(map[string][]progress.Event)
	order := make([]string, 0, 1)
	for _, evt := range batch {
		if _, ok := byRun[evt.RunID]; !ok {
			order = append(order, evt.RunID)
		}
		byRun[evt.RunID] = append(byRun[evt.RunID], evt)
	}
	for _, runID := range order {
		current, err := s.store.Get(ctx, runID)
		if err != nil && !errors.Is(err, status.ErrNotFound) {
			return fmt.Errorf("load run status %s: %w", runID, err)
		}
		current.RunID = runID
		for _, evt := range byRun[runID] {
			current.Apply(evt)
		}
		if err := s.store.Put(ctx, current); err != nil {
			return fmt.Errorf("save run status %s: %w", runID, err)
		}
		s.logger.Debug("run status updated",
			zap.String("run_id", runID),
			zap.String("state", string(current.State)),
			zap.Int("fetched", current.Fetched),
		)
	}
	return nil
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
