// Package reaper periodically fails transcriptions stuck in "processing"
// past their lease, e.g. after a crash mid-call.
package reaper

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/metrics"
	"github.com/robfig/cron"
)

type StaleReaper interface {
	ReapStale(ctx context.Context) (int64, error)
}

type Reaper struct {
	schedule cron.Schedule
	spec     string
	target   StaleReaper
	logger   logging.Logger
	metrics  *metrics.Metrics

	// serializes runs when one outlasts the schedule interval
	mu sync.Mutex
}

// New parses spec (a cron expression with seconds or a descriptor such as
// "@every 5m") and returns a reaper for target. m may be nil.
func New(spec string, target StaleReaper, logger logging.Logger, m *metrics.Metrics) (*Reaper, error) {
	schedule, err := cron.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", spec, err)
	}
	return &Reaper{
		schedule: schedule,
		spec:     spec,
		target:   target,
		logger:   logger.With("module", "reaper"),
		metrics:  m,
	}, nil
}

// Run fires RunOnce on the schedule until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	c := cron.New()
	c.Schedule(r.schedule, cron.FuncJob(func() { _, _ = r.RunOnce(ctx) }))
	c.Start()

	r.logger.Info(ctx, "Starting reaper", "schedule", r.spec)
	<-ctx.Done()

	c.Stop()
	r.logger.Info(ctx, "Stopping reaper...")
}

// RunOnce reaps once. Failures are logged unless ctx is already done.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.target.ReapStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error(ctx, "reaping stale transcriptions failed", "error", err)
		}
		return 0, err
	}
	r.metrics.ObserveReaped(n)
	r.logger.Debug(ctx, "reaper run finished", "count", n)
	return n, nil
}
