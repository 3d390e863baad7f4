package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/walkthrough/journal"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/stream"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports store reachability.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PendingAdvance describes a scheduled step advance.
type PendingAdvance struct {
	StepIndex int       `json:"step_index"`
	DueAt     time.Time `json:"due_at"`
}

// SessionResponse is the debug view of the live session.
type SessionResponse struct {
	Session *session.Session `json:"session"`
	Pending *PendingAdvance  `json:"pending_advance,omitempty"`
}

// StatsResponse summarizes coordinator activity.
type StatsResponse struct {
	ActiveSession bool               `json:"active_session"`
	State         string             `json:"machine_state,omitempty"`
	StepIndex     int                `json:"current_step_index"`
	TotalSteps    int                `json:"total_steps"`
	Connections   int                `json:"connections"`
	Stream        stream.BrokerStats `json:"stream"`
}

// WorkflowSummary is one catalog entry.
type WorkflowSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	StartingURL string `json:"starting_url"`
	TotalSteps  int    `json:"total_steps"`
}

// lister is implemented by catalogs that can enumerate their workflows.
type lister interface {
	Workflows() []session.Workflow
}

const healthTimeout = 2 * time.Second

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := a.eng.Store().Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.eng.Manager().Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}

	resp := SessionResponse{Session: s}
	if t, ok := a.eng.Scheduler().Pending(s.ID.String()); ok {
		resp.Pending = &PendingAdvance{StepIndex: t.Key.StepIndex, DueAt: t.DueAt}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listJournal(w http.ResponseWriter, r *http.Request) {
	f := journal.Filter{SessionID: r.URL.Query().Get("session_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	entries, err := a.eng.Journal().Recent(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.eng.Manager().Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatsResponse{
		Connections: a.eng.Wire().Connections().Count(),
		Stream:      a.eng.Broker().Stats(),
	}
	if s != nil {
		resp.ActiveSession = true
		resp.State = string(s.State)
		resp.StepIndex = s.StepIndex
		resp.TotalSteps = s.TotalSteps
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	l, ok := a.eng.Catalog().(lister)
	if !ok {
		writeError(w, http.StatusNotFound, "no workflow catalog")
		return
	}

	wfs := l.Workflows()
	out := make([]WorkflowSummary, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			StartingURL: wf.StartingURL,
			TotalSteps:  len(wf.Steps),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
