package jobs

import (
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts time.Now so tests can control lease expiry without
// sleeping.
type Clock func() time.Time

// Config holds the tunables the state machine needs beyond the
// per-call arguments.
type Config struct {
	LeaseDuration      time.Duration
	DefaultMaxAttempts int
}

// Engine is the job state machine: it owns every transition named in
// the spec (create, list, get, claim, heartbeat, complete, fail,
// release, comment). Apart from the Reaper's expired-lease transition
// (reaper.go), it is the only component that mutates a Job's status,
// attempts, or claimedBy.
type Engine struct {
	store  *Store
	cfg    Config
	clock  Clock
	log    zerolog.Logger
}

// NewEngine builds an Engine backed by store. log may be the zero
// value of zerolog.Logger (discard).
func NewEngine(store *Store, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, clock: time.Now, log: log}
}

// CreateInput are the fields the head supplies when creating a job.
type CreateInput struct {
	Target      Target
	Spec        string
	Meta        map[string]any
	MaxAttempts int
}

// Create adds a new job in status=queued. Head-only: any other role
// gets ErrForbidden. Like the other operations below, Create takes the
// already-authenticated Role and does its own role check, so the HTTP
// layer only resolves the caller's role.
func (e *Engine) Create(role Role, in CreateInput) (*Job, error) {
	if role != RoleHead {
		return nil, ErrForbidden
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.DefaultMaxAttempts
	}

	now := nowISO(e.clock())
	job := &Job{
		ID:          id,
		Target:      in.Target,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   RoleHead,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		Spec:        in.Spec,
		Meta:        in.Meta,
		Comments:    []Comment{},
		Result:      nil,
	}

	if err := e.store.WriteAtomic(job); err != nil {
		return nil, err
	}
	e.emit(job.ID, EventCreated, string(RoleHead), nil)
	e.log.Info().Str("job_id", job.ID).Str("target", string(job.Target)).Msg("job created")

	return job, nil
}

// ListFilters narrows List's result set.
type ListFilters struct {
	Status Status
	Target Target
}

// List returns every job visible to role, ordered by createdAt
// ascending, with filters applied.
func (e *Engine) List(role Role, filters ListFilters) ([]*Job, error) {
	all, err := e.store.List()
	if err != nil {
		return nil, err
	}

	out := make([]*Job, 0, len(all))
	for _, job := range all {
		if !canAccess(role, job) {
			continue
		}
		if filters.Status != "" && job.Status != filters.Status {
			continue
		}
		if filters.Target != "" && job.Target != filters.Target {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Get returns a single job if it exists and role may access it.
func (e *Engine) Get(role Role, id string) (*Job, error) {
	job, err := e.store.Read(id)
	if err != nil {
		return nil, err
	}
	if !canAccess(role, job) {
		return nil, ErrForbidden
	}
	return job, nil
}

// Claim transitions a queued job to running for role, under the
// per-job claim mutex. See spec §4.4 for the full precondition list
// and the "claim vs expired-lease" design choice this implementation
// makes (DESIGN.md records the Open Question resolution).
func (e *Engine) Claim(role Role, id string) (*Job, error) {
	if !role.IsClaw() {
		return nil, ErrForbidden
	}

	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if !canAccess(role, job) {
			return ErrForbidden
		}

		now := e.clock()

		if job.Status != StatusQueued {
			if job.Status == StatusRunning {
				return ErrAlreadyClaimed
			}
			return ErrTerminalStatus
		}

		if job.Attempts >= job.MaxAttempts {
			job.Status = StatusDead
			job.LeaseUntil = nil
			job.ClaimedBy = nil
			job.UpdatedAt = nowISO(now)
			if err := e.store.WriteAtomic(job); err != nil {
				return err
			}
			e.emit(id, EventDead, string(role), map[string]any{"reason": "max_attempts_reached"})
			return ErrMaxAttemptsReached
		}

		leaseUntil := nowISO(now.Add(e.cfg.LeaseDuration))
		job.Status = StatusRunning
		job.ClaimedBy = &role
		job.LeaseUntil = &leaseUntil
		job.Attempts++
		job.UpdatedAt = nowISO(now)

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventClaimed, string(role), map[string]any{"attempts": job.Attempts})
		e.log.Info().Str("job_id", id).Str("role", string(role)).Int("attempts", job.Attempts).Msg("job claimed")

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) requireOwnerRunning(role Role, job *Job) error {
	if job.Status != StatusRunning {
		return ErrNotRunning
	}
	if !isOwnerOrHead(role, job) {
		return ErrNotOwner
	}
	if !canAccess(role, job) {
		return ErrForbidden
	}
	return nil
}

// HeartbeatInput carries the optional progress payload.
type HeartbeatInput struct {
	Progress any
}

// Heartbeat extends a running job's lease.
func (e *Engine) Heartbeat(role Role, id string, in HeartbeatInput) (*Job, error) {
	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if err := e.requireOwnerRunning(role, job); err != nil {
			return err
		}

		now := e.clock()
		leaseUntil := nowISO(now.Add(e.cfg.LeaseDuration))
		job.LeaseUntil = &leaseUntil
		job.UpdatedAt = nowISO(now)
		if in.Progress != nil {
			job.Progress = in.Progress
		}

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventHeartbeat, string(role), nil)

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteInput carries the optional result payload.
type CompleteInput struct {
	Result any
}

// Complete marks a running job done. claimedBy is deliberately left
// in place as an audit field — this asymmetry with Fail/Release is
// intentional (spec §9).
func (e *Engine) Complete(role Role, id string, in CompleteInput) (*Job, error) {
	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if err := e.requireOwnerRunning(role, job); err != nil {
			return err
		}

		now := e.clock()
		job.Status = StatusDone
		job.Result = in.Result
		job.Error = nil
		job.LeaseUntil = nil
		job.UpdatedAt = nowISO(now)

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventCompleted, string(role), nil)
		e.log.Info().Str("job_id", id).Str("role", string(role)).Msg("job completed")

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FailInput carries the optional error message and requeue directive.
// Requeue defaults to true when nil.
type FailInput struct {
	Error   *string
	Requeue *bool
}

// Fail reports a running job's failure. If requeue is requested (the
// default) and attempts remain, the job returns to queued; otherwise
// it becomes failed, or dead if attempts are exhausted.
func (e *Engine) Fail(role Role, id string, in FailInput) (*Job, error) {
	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if err := e.requireOwnerRunning(role, job); err != nil {
			return err
		}

		now := e.clock()
		requeueRequested := in.Requeue == nil || *in.Requeue
		requeue := requeueRequested && job.Attempts < job.MaxAttempts

		job.ClaimedBy = nil
		job.LeaseUntil = nil
		job.Error = in.Error
		job.UpdatedAt = nowISO(now)

		if requeue {
			job.Status = StatusQueued
		} else if job.Attempts >= job.MaxAttempts {
			job.Status = StatusDead
		} else {
			job.Status = StatusFailed
		}

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventFailed, string(role), map[string]any{
			"requeued": requeue,
			"attempts": job.Attempts,
		})
		e.log.Info().Str("job_id", id).Str("role", string(role)).Bool("requeued", requeue).Msg("job failed")

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseInput carries the optional release reason.
type ReleaseInput struct {
	Reason *string
}

// Release voluntarily returns a running job to queued, without
// touching attempts.
func (e *Engine) Release(role Role, id string, in ReleaseInput) (*Job, error) {
	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if err := e.requireOwnerRunning(role, job); err != nil {
			return err
		}

		now := e.clock()
		job.Status = StatusQueued
		job.ClaimedBy = nil
		job.LeaseUntil = nil
		job.UpdatedAt = nowISO(now)
		if in.Reason != nil {
			job.ReleaseReason = in.Reason
		}

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventReleased, string(role), nil)

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Comment appends a note to job. Only canAccess is required — no
// ownership, no specific status.
func (e *Engine) Comment(role Role, id string, text string) (*Job, error) {
	var result *Job
	err := withLock(e.store, id, func() error {
		job, err := e.store.Read(id)
		if err != nil {
			return err
		}
		if !canAccess(role, job) {
			return ErrForbidden
		}

		now := e.clock()
		job.Comments = append(job.Comments, Comment{T: now, By: role, Text: text})
		job.UpdatedAt = nowISO(now)

		if err := e.store.WriteAtomic(job); err != nil {
			return err
		}
		e.emit(id, EventComment, string(role), map[string]any{"text": text})

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) emit(id string, t EventType, by string, data map[string]any) {
	ev := Event{T: nowISO(e.clock()), Type: t, By: by, Data: data}
	if err := e.store.AppendEvent(id, ev); err != nil {
		e.log.Warn().Err(err).Str("job_id", id).Msg("failed to append event")
	}
}
