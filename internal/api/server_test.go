package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/austintgriffith/openclaw-spine/internal/jobs"
	"github.com/austintgriffith/openclaw-spine/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := jobs.NewStore(t.TempDir())
	require.NoError(t, err)

	engine := jobs.NewEngine(store, jobs.Config{
		LeaseDuration:      30 * time.Second,
		DefaultMaxAttempts: 3,
	}, zerolog.Nop())

	return NewServer(engine,
		[]string{"head-token"},
		[]string{"left-token"},
		[]string{"right-token"},
		metrics.New(),
		zerolog.Nop(),
	)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateClaimComplete_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{
		Target: jobs.TargetLeftClaw,
		Spec:   "do the thing",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, jobs.StatusQueued, created.Status)

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/claim", "left-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var claimed jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	require.Equal(t, jobs.StatusRunning, claimed.Status)

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/complete", "left-token", completeRequest{
		Result: "done",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var done jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	require.Equal(t, jobs.StatusDone, done.Status)
}

func TestCreate_RejectsNonHead(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/jobs/", "left-token", createJobRequest{Spec: "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreate_RejectsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/jobs/", "", createJobRequest{Spec: "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaim_WrongTargetIsForbidden(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{
		Target: jobs.TargetRightClaw,
		Spec:   "x",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/claim", "left-token", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClaim_AlreadyClaimedConflict(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{
		Target: jobs.TargetAny,
		Spec:   "x",
	})
	var created jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/claim", "left-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/claim", "right-token", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetUnknownJob_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/jobs/does-not-exist", "head-token", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList_FiltersByTarget(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{Target: jobs.TargetLeftClaw, Spec: "a"})
	doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{Target: jobs.TargetRightClaw, Spec: "b"})

	rec := doJSON(t, s, http.MethodGet, "/jobs/?target=left-claw", "head-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	require.Equal(t, jobs.TargetLeftClaw, body.Jobs[0].Target)
}

func TestComment_AllowedForAnyVisibleRole(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/jobs/", "head-token", createJobRequest{Target: jobs.TargetAny, Spec: "x"})
	var created jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/jobs/"+created.ID+"/comment", "right-token", commentRequest{Text: "on it"})
	require.Equal(t, http.StatusOK, rec.Code)

	var commented jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commented))
	require.Len(t, commented.Comments, 1)
}

func TestMetrics_ServedWithoutAuth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
