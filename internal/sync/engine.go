// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package sync

import (
	"context"
	"sync"
	"time"

	"github.com/navaar/navaar/internal/database"
	"github.com/navaar/navaar/internal/logging"
	"github.com/navaar/navaar/internal/metrics"
	"github.com/navaar/navaar/internal/models"
)

// Engine schedules one loop per registered direction. Each loop runs a
// cycle, then waits for its interval, a forced-sync request, or shutdown.
// Implements suture.Service via Serve.
type Engine struct {
	db    *database.DB
	loops map[models.Direction]*loop
	order []models.Direction
}

type loop struct {
	worker   Worker
	interval time.Duration
	// force is a 1-buffered latch: requests during a running cycle are
	// remembered, duplicates collapse.
	force chan struct{}
}

func NewEngine(db *database.DB) *Engine {
	return &Engine{
		db:    db,
		loops: make(map[models.Direction]*loop),
	}
}

// Register adds a worker to the schedule. Must be called before Serve.
func (e *Engine) Register(w Worker, interval time.Duration) {
	d := w.Direction()
	e.loops[d] = &loop{
		worker:   w,
		interval: interval,
		force:    make(chan struct{}, 1),
	}
	e.order = append(e.order, d)
}

// Directions lists the registered directions in registration order.
func (e *Engine) Directions() []models.Direction {
	return e.order
}

// ForceSync requests an immediate cycle for a direction. Returns false when
// the direction is not scheduled.
func (e *Engine) ForceSync(d models.Direction) bool {
	l, ok := e.loops[d]
	if !ok {
		return false
	}
	select {
	case l.force <- struct{}{}:
	default:
		// A force is already latched.
	}
	return true
}

// Serve runs all loops until the context is canceled. In-flight cycles
// complete before Serve returns.
func (e *Engine) Serve(ctx context.Context) error {
	logging.Info().Int("directions", len(e.order)).Msg("Sync engine starting")

	var wg sync.WaitGroup
	for _, d := range e.order {
		wg.Add(1)
		go func(d models.Direction, l *loop) {
			defer wg.Done()
			e.runLoop(ctx, d, l)
		}(d, e.loops[d])
	}
	wg.Wait()

	logging.Info().Msg("Sync engine stopped")
	return ctx.Err()
}

func (e *Engine) runLoop(ctx context.Context, d models.Direction, l *loop) {
	logging.Info().Str("direction", d.String()).Dur("interval", l.interval).Msg("Sync loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	// Drain the initial fire so the first cycle runs immediately below.
	<-timer.C

	for {
		if ctx.Err() != nil {
			logging.Info().Str("direction", d.String()).Msg("Sync loop stopped")
			return
		}

		e.runCycle(ctx, d, l.worker)

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			logging.Info().Str("direction", d.String()).Msg("Sync loop stopped")
			return
		case <-l.force:
			logging.Info().Str("direction", d.String()).Msg("Forced sync")
		case <-timer.C:
		}
	}
}

// runCycle executes one worker cycle and records its metric side effects.
// Panics and cycle-level errors are absorbed so one bad cycle never kills
// the loop.
func (e *Engine) runCycle(ctx context.Context, d models.Direction, w Worker) {
	start := time.Now()
	metrics.SyncCycles.WithLabelValues(d.String()).Inc()
	logging.Debug().Str("direction", d.String()).Msg("Sync cycle start")

	processed, err := func() (n int, err error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Str("direction", d.String()).Interface("panic", r).Msg("Sync cycle panicked")
				metrics.SyncErrors.WithLabelValues(d.String(), "cycle_crash").Inc()
				n = 0
			}
		}()
		return w.RunCycle(ctx)
	}()
	if err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Str("direction", d.String()).Msg("Sync cycle crashed")
		metrics.SyncErrors.WithLabelValues(d.String(), "cycle_crash").Inc()
	}

	elapsed := time.Since(start)
	metrics.SyncCycleDuration.WithLabelValues(d.String()).Observe(elapsed.Seconds())
	metrics.LastSyncTimestamp.WithLabelValues(d.String()).Set(float64(time.Now().Unix()))
	metrics.LastSyncDuration.WithLabelValues(d.String()).Set(elapsed.Seconds())
	metrics.LastSyncProcessed.WithLabelValues(d.String()).Set(float64(processed))
	metrics.TickUptime()

	e.updateGauges(ctx)

	if err := e.db.SetState(ctx, models.LastSyncKey(d), models.FormatLastSync(time.Now())); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Str("direction", d.String()).Msg("Could not store last sync time")
	}

	logging.Info().
		Str("direction", d.String()).
		Int("processed", processed).
		Dur("elapsed", elapsed).
		Msg("Sync cycle complete")
}

func (e *Engine) updateGauges(ctx context.Context) {
	counts, err := e.db.GetCounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Msg("Could not refresh track gauges")
		}
		return
	}

	var total, totalSynced int64
	for _, d := range e.order {
		statuses := counts[d]
		pending := statuses[models.StatusPending] + statuses[models.StatusRetryScheduled]
		synced := statuses[models.StatusSynced]

		metrics.TracksPending.WithLabelValues(d.String()).Set(float64(pending))
		metrics.TracksFailed.WithLabelValues(d.String()).Set(float64(statuses[models.StatusFailed]))
		metrics.TracksSyncedCurrent.WithLabelValues(d.String()).Set(float64(synced))
		metrics.TracksDuplicate.WithLabelValues(d.String()).Set(float64(statuses[models.StatusDuplicate]))

		for _, n := range statuses {
			total += n
		}
		totalSynced += synced
	}

	metrics.TracksTotal.Set(float64(total))
	if total > 0 {
		metrics.SuccessRate.Set(float64(int(float64(totalSynced)/float64(total)*1000+0.5)) / 10)
	} else {
		metrics.SuccessRate.Set(0)
	}
}
