// Package handlers exposes the worker's HTTP surface: campaign submission
// and run status lookups.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/dbosruntime"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// Enqueuer enqueues a campaign workflow and returns its run ID.
type Enqueuer interface {
	RunAsync(ctx context.Context, req pipeline.ProcessRequest) (string, error)
}

// StatusReader reads the status of a workflow run.
type StatusReader interface {
	GetRunStatus(ctx context.Context, runID string) (*dbosruntime.RunStatus, error)
}

// RunRecorder records brief submissions. Optional.
type RunRecorder interface {
	Record(ctx context.Context, briefFile, campaign, runID string) (int, error)
}

// AsyncHandler handles asynchronous campaign processing requests.
type AsyncHandler struct {
	enqueuer Enqueuer
	status   StatusReader
	recorder RunRecorder
	logger   zerolog.Logger
}

// NewAsyncHandler creates an async handler. recorder may be nil.
func NewAsyncHandler(enqueuer Enqueuer, status StatusReader, recorder RunRecorder, logger zerolog.Logger) *AsyncHandler {
	return &AsyncHandler{
		enqueuer: enqueuer,
		status:   status,
		recorder: recorder,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// Routes mounts the handler's endpoints on a chi router.
func (h *AsyncHandler) Routes(r chi.Router) {
	r.Post("/v1/campaigns", h.HandleSubmitCampaign)
	r.Get("/v1/runs/{runID}", h.HandleStatus)
}

// HandleSubmitCampaign handles POST /v1/campaigns: it enqueues the campaign
// workflow and returns 202 immediately.
func (h *AsyncHandler) HandleSubmitCampaign(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.BriefPath == "" {
		http.Error(w, "brief_path is required", http.StatusBadRequest)
		return
	}
	if req.Job == "" {
		req.Job = pipeline.JobCampaign
	}

	h.logger.Info().Str("brief", req.BriefPath).Str("job", req.Job).Msg("enqueueing campaign workflow")

	runID, err := h.enqueuer.RunAsync(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to enqueue workflow")
		http.Error(w, fmt.Sprintf("failed to enqueue workflow: %v", err), http.StatusInternalServerError)
		return
	}

	seenCount := 0
	if h.recorder != nil {
		seenCount, err = h.recorder.Record(r.Context(), filepath.Base(req.BriefPath), "", runID)
		if err != nil {
			// Ledger trouble never blocks a submission.
			h.logger.Warn().Err(err).Msg("failed to record submission")
			seenCount = 0
		}
	}

	resp := pipeline.ProcessResponse{
		RunID:     runID,
		SeenCount: seenCount,
		BriefPath: req.BriefPath,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

// runStatusResponse is the wire shape for GET /v1/runs/{runID}.
type runStatusResponse struct {
	RunID     string          `json:"run_id"`
	Status    string          `json:"status"`
	Name      string          `json:"name,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HandleStatus handles GET /v1/runs/{runID}.
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	st, err := h.status.GetRunStatus(r.Context(), runID)
	if errors.Is(err, dbosruntime.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to get run status")
		http.Error(w, "failed to get run status", http.StatusInternalServerError)
		return
	}

	resp := runStatusResponse{
		RunID:     st.RunID,
		Status:    st.Status,
		Name:      st.Name,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
	if st.Output.Valid && json.Valid([]byte(st.Output.String)) {
		resp.Output = json.RawMessage(st.Output.String)
	}
	if st.Error.Valid {
		resp.Error = st.Error.String
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
