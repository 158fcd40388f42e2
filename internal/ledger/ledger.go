// Package ledger tracks pipeline invocations so each run can compute its
// ingestion lower bound without external state.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// Ledger is an append-only record of runs backed by the durable store.
type Ledger struct {
	store    service.Storage
	clock    func() time.Time
	lookback time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// New creates a ledger. lookback is the default window used when no prior
// successful run exists.
func New(store service.Storage, lookback time.Duration, opts ...Option) *Ledger {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	ledger := &Ledger{
		store:    store,
		clock:    time.Now,
		lookback: lookback,
	}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger
}

// RecordRun appends a run record.
func (l *Ledger) RecordRun(ctx context.Context, run *model.RunRecord) error {
	return l.store.RecordRun(ctx, run)
}

// LastRunTimestamp returns the most recent successful run's timestamp, or
// nil when no successful run has been recorded.
func (l *Ledger) LastRunTimestamp(ctx context.Context) (*time.Time, error) {
	run, err := l.store.LastSuccessfulRun(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run.StartedAt, nil
}

// LowerBound computes the ingestion lower bound for the next run: the last
// successful run's timestamp, or the default lookback window when the
// ledger has no successful run yet.
func (l *Ledger) LowerBound(ctx context.Context) (time.Time, error) {
	last, err := l.LastRunTimestamp(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return l.clock().Add(-l.lookback), nil
	}
	return *last, nil
}
