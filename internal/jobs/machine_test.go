package jobs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeClock) {
	t.Helper()
	store := newTestStore(t)
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if cfg.DefaultMaxAttempts == 0 {
		cfg.DefaultMaxAttempts = 3
	}
	eng := NewEngine(store, cfg, zerolog.Nop())
	fc := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng.clock = fc.now
	return eng, fc
}

// S1 — create, claim, complete happy path.
func TestScenario_CreateClaimComplete(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "do stuff", MaxAttempts: 2})
	require.NoError(t, err)

	listed, err := eng.List(RoleHead, ListFilters{Status: StatusQueued})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, job.ID, listed[0].ID)

	claimed, err := eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, claimed.Status)
	require.Equal(t, 1, claimed.Attempts)

	done, err := eng.Complete(RoleLeftClaw, job.ID, CompleteInput{Result: "ok"})
	require.NoError(t, err)
	require.Equal(t, StatusDone, done.Status)
	require.Equal(t, "ok", done.Result)
}

// S2 — ownership enforcement.
func TestScenario_Ownership(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "x"})
	require.NoError(t, err)
	_, err = eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)

	_, err = eng.Heartbeat(RoleRightClaw, job.ID, HeartbeatInput{})
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = eng.Heartbeat(RoleHead, job.ID, HeartbeatInput{})
	require.NoError(t, err)

	_, err = eng.Complete(RoleRightClaw, job.ID, CompleteInput{})
	require.ErrorIs(t, err, ErrNotOwner)

	no := false
	failed, err := eng.Fail(RoleHead, job.ID, FailInput{Requeue: &no})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
}

// S3 — attempts exhaustion leads to dead, further claims rejected.
func TestScenario_AttemptsExhaustedGoesDead(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "x", MaxAttempts: 1})
	require.NoError(t, err)

	_, err = eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)

	failed, err := eng.Fail(RoleLeftClaw, job.ID, FailInput{})
	require.NoError(t, err)
	require.Equal(t, StatusDead, failed.Status)

	_, err = eng.Claim(RoleLeftClaw, job.ID)
	require.ErrorIs(t, err, ErrTerminalStatus)
}

// S4 — retry then complete.
func TestScenario_RetryThenComplete(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "x", MaxAttempts: 5})
	require.NoError(t, err)

	claimed, err := eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	errMsg := "transient"
	yes := true
	failed, err := eng.Fail(RoleLeftClaw, job.ID, FailInput{Error: &errMsg, Requeue: &yes})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, failed.Status)

	claimed2, err := eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, 2, claimed2.Attempts)

	done, err := eng.Complete(RoleLeftClaw, job.ID, CompleteInput{})
	require.NoError(t, err)
	require.Equal(t, StatusDone, done.Status)
}

// S6 — any-target eligibility.
func TestScenario_AnyTarget(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetAny, Spec: "x"})
	require.NoError(t, err)

	claimed, err := eng.Claim(RoleRightClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, claimed.Status)

	done, err := eng.Complete(RoleRightClaw, job.ID, CompleteInput{})
	require.NoError(t, err)
	require.Equal(t, StatusDone, done.Status)
}

func TestClaim_WrongTargetForbidden(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "x"})
	require.NoError(t, err)

	_, err = eng.Claim(RoleRightClaw, job.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRelease_ReturnsToQueueWithoutIncrementingAttempts(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetLeftClaw, Spec: "x"})
	require.NoError(t, err)

	claimed, err := eng.Claim(RoleLeftClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	reason := "needs different worker"
	released, err := eng.Release(RoleLeftClaw, job.ID, ReleaseInput{Reason: &reason})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, released.Status)
	require.Equal(t, 1, released.Attempts)
	require.Nil(t, released.ClaimedBy)
}

func TestComment_AppendsWithoutChangingOtherFields(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetAny, Spec: "x"})
	require.NoError(t, err)

	updated, err := eng.Comment(RoleHead, job.ID, "looking into this")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	require.Equal(t, "looking into this", updated.Comments[0].Text)
	require.Equal(t, StatusQueued, updated.Status)

	updated2, err := eng.Comment(RoleLeftClaw, job.ID, "ack")
	require.NoError(t, err)
	require.Len(t, updated2.Comments, 2)
}

func TestHeartbeat_RequiresRunning(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetAny, Spec: "x"})
	require.NoError(t, err)

	_, err = eng.Heartbeat(RoleHead, job.ID, HeartbeatInput{})
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestGet_ForbiddenForWrongTarget(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	job, err := eng.Create(RoleHead, CreateInput{Target: TargetRightClaw, Spec: "x"})
	require.NoError(t, err)

	_, err = eng.Get(RoleLeftClaw, job.ID)
	require.ErrorIs(t, err, ErrForbidden)

	got, err := eng.Get(RoleRightClaw, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
}
