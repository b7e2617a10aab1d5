package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ReaperStats summarizes one sweep, for logging and metrics.
type ReaperStats struct {
	Scanned int
	Expired int
	Dead    int
	Errors  int
}

// Reaper periodically returns running jobs with an expired lease to
// queued (or dead, if retries are exhausted). It shares the engine's
// store and claim mutex with request handlers — the reaper holds no
// special privilege and backs off on contention rather than blocking.
type Reaper struct {
	engine   *Engine
	interval time.Duration
	log      zerolog.Logger

	onSweep func(ReaperStats)
}

// NewReaper builds a Reaper that sweeps engine's store every interval.
func NewReaper(engine *Engine, interval time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{engine: engine, interval: interval, log: log}
}

// OnSweep registers a callback invoked after every sweep (used to
// feed Prometheus counters without the jobs package depending on the
// metrics package).
func (r *Reaper) OnSweep(fn func(ReaperStats)) {
	r.onSweep = fn
}

// Run blocks, sweeping once immediately and then every interval,
// until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	r.sweepOnce()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Reaper) sweepOnce() {
	stats := ReaperStats{}

	jobs, err := r.engine.store.List()
	if err != nil {
		r.log.Warn().Err(err).Msg("reaper: failed to list jobs")
		stats.Errors++
		r.report(stats)
		return
	}

	now := r.engine.clock()

	for _, job := range jobs {
		if job.Status != StatusRunning {
			continue
		}
		if job.LeaseUntil == nil || !isExpired(*job.LeaseUntil, now) {
			continue
		}
		stats.Scanned++

		if err := r.reapOne(job.ID, now); err != nil {
			if KindOf(err) == KindLocked {
				// Contention: another caller holds the mutex. Skip;
				// retried next pass.
				continue
			}
			r.log.Warn().Err(err).Str("job_id", job.ID).Msg("reaper: failed to reap job")
			stats.Errors++
			continue
		}

		// reapOne already re-read the record under the lock to decide
		// the outcome; re-read once more here only for the dead/expired
		// split used in stats, cheaply, outside the lock (best effort).
		refreshed, err := r.engine.store.Read(job.ID)
		if err == nil && refreshed.Status == StatusDead {
			stats.Dead++
		} else {
			stats.Expired++
		}
	}

	r.report(stats)
}

func (r *Reaper) report(stats ReaperStats) {
	r.log.Info().
		Int("scanned", stats.Scanned).
		Int("expired", stats.Expired).
		Int("dead", stats.Dead).
		Int("errors", stats.Errors).
		Msg("reaper sweep complete")
	if r.onSweep != nil {
		r.onSweep(stats)
	}
}

// reapOne acquires the claim mutex, re-checks the expiry condition
// (the record may have changed since the unlocked scan above), and
// applies the expired-lease transition.
func (r *Reaper) reapOne(id string, scanTime time.Time) error {
	return withLock(r.engine.store, id, func() error {
		job, err := r.engine.store.Read(id)
		if err != nil {
			return err
		}
		if job.Status != StatusRunning || job.LeaseUntil == nil {
			return nil
		}
		if !isExpired(*job.LeaseUntil, r.engine.clock()) {
			return nil
		}

		now := r.engine.clock()
		if job.Attempts >= job.MaxAttempts {
			job.Status = StatusDead
			job.LeaseUntil = nil
			job.ClaimedBy = nil
			job.UpdatedAt = nowISO(now)
			if err := r.engine.store.WriteAtomic(job); err != nil {
				return err
			}
			r.engine.emit(id, EventDead, "reaper", map[string]any{"reason": "lease_expired_max_attempts"})
			return nil
		}

		job.Status = StatusQueued
		job.ClaimedBy = nil
		job.LeaseUntil = nil
		job.UpdatedAt = nowISO(now)
		if err := r.engine.store.WriteAtomic(job); err != nil {
			return err
		}
		r.engine.emit(id, EventExpired, "reaper", nil)
		return nil
	})
}

func isExpired(leaseUntil string, now time.Time) bool {
	t, err := time.Parse("2006-01-02T15:04:05.000Z", leaseUntil)
	if err != nil {
		return false
	}
	return !t.After(now)
}
