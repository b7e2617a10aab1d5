package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/austintgriffith/openclaw-spine/internal/jobs"
)

// decode parses a JSON body into v, if one was sent. A missing or
// empty body is not an error — several operations (heartbeat,
// complete, fail, release) accept an optional payload.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "bad_request")
		return false
	}
	return true
}

type createJobRequest struct {
	Target      jobs.Target    `json:"target"`
	Spec        string         `json:"spec"`
	Meta        map[string]any `json:"meta"`
	MaxAttempts int            `json:"maxAttempts"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}

	var req createJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Target == "" {
		req.Target = jobs.TargetAny
	}

	job, err := s.engine.Create(role, jobs.CreateInput{
		Target:      req.Target,
		Spec:        req.Spec,
		Meta:        req.Meta,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.JobsCreated.Inc()
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}

	filters := jobs.ListFilters{
		Status: jobs.Status(r.URL.Query().Get("status")),
		Target: jobs.Target(r.URL.Query().Get("target")),
	}

	list, err := s.engine.List(role, filters)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	job, err := s.engine.Get(role, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	job, err := s.engine.Claim(role, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.JobsClaimed.Inc()
	writeJSON(w, http.StatusOK, job)
}

type heartbeatRequest struct {
	Progress any `json:"progress"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req heartbeatRequest
	if !s.decode(w, r, &req) {
		return
	}

	job, err := s.engine.Heartbeat(role, id, jobs.HeartbeatInput{Progress: req.Progress})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type completeRequest struct {
	Result any `json:"result"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req completeRequest
	if !s.decode(w, r, &req) {
		return
	}

	job, err := s.engine.Complete(role, id, jobs.CompleteInput{Result: req.Result})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.JobsCompleted.Inc()
	writeJSON(w, http.StatusOK, job)
}

type failRequest struct {
	Error   *string `json:"error"`
	Requeue *bool   `json:"requeue"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req failRequest
	if !s.decode(w, r, &req) {
		return
	}

	job, err := s.engine.Fail(role, id, jobs.FailInput{Error: req.Error, Requeue: req.Requeue})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.JobsFailed.Inc()
	writeJSON(w, http.StatusOK, job)
}

type releaseRequest struct {
	Reason *string `json:"reason"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req releaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	job, err := s.engine.Release(role, id, jobs.ReleaseInput{Reason: req.Reason})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.metrics.JobsReleased.Inc()
	writeJSON(w, http.StatusOK, job)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	role, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req commentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	job, err := s.engine.Comment(role, id, req.Text)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
