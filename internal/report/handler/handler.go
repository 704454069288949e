// Package handler exposes the run-control HTTP API: submit a report file
// for validation, fetch run status, fetch the final score.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"repval/internal/platform/middleware"
	"repval/internal/report/models"
	"repval/internal/report/source"
	"repval/internal/report/store"
	domerrors "repval/pkg/domain-errors"
	"repval/pkg/platform/httputil"
)

// Runner executes one validation run to completion.
type Runner interface {
	Run(ctx context.Context, reportDate string, src source.Source) (*models.ReportRun, error)
}

// SourceFactory builds a record source from an uploaded submission body.
type SourceFactory func(r *http.Request) (source.Source, error)

// Handler wires run endpoints to the pipeline and the result store.
type Handler struct {
	runner  Runner
	store   store.Store
	sources SourceFactory
	logger  *slog.Logger
}

func New(runner Runner, st store.Store, sources SourceFactory, logger *slog.Logger) (*Handler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sources == nil {
		return nil, fmt.Errorf("source factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, store: st, sources: sources, logger: logger}, nil
}

// Register mounts the run endpoints on the router. The caller decides
// which middleware guards them.
func (h *Handler) Register(r chi.Router) {
	r.Post("/runs", h.HandleStartRun)
	r.Get("/runs/{executionID}", h.HandleGetRun)
	r.Get("/runs/{executionID}/score", h.HandleGetScore)
}

// HandleStartRun handles POST /runs. The body is the delimited submission
// file; report_date selects the reporting day being validated. The run
// executes synchronously and the response carries the final state, so a
// submission client learns its score from a single call.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	reportDate := r.URL.Query().Get("report_date")
	if _, err := time.Parse("2006-01-02", reportDate); err != nil {
		httputil.WriteError(w, httputil.CodeBadRequest, "report_date must be YYYY-MM-DD")
		return
	}

	src, err := h.sources(r)
	if err != nil {
		h.logger.WarnContext(ctx, "submission rejected",
			"request_id", requestID,
			"report_date", reportDate,
			"error", err,
		)
		if errors.Is(err, domerrors.ErrSchemaMismatch) {
			httputil.WriteError(w, httputil.CodeBadRequest, "submission does not match the reporting schema")
			return
		}
		httputil.WriteError(w, httputil.CodeBadRequest, "submission could not be read")
		return
	}

	run, err := h.runner.Run(ctx, reportDate, src)
	if err != nil {
		h.logger.ErrorContext(ctx, "run failed",
			"request_id", requestID,
			"report_date", reportDate,
			"error", err,
		)
		if run == nil {
			httputil.WriteError(w, httputil.CodeInternal, "run could not be started")
			return
		}
		// The failed run is persisted; return it so the client has the
		// execution ID and failure reason.
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, fromRun(run))
		return
	}

	h.logger.InfoContext(ctx, "run completed",
		"request_id", requestID,
		"execution_id", run.ExecutionID,
		"report_date", reportDate,
		"subject", middleware.GetSubject(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, fromRun(run))
}

// HandleGetRun handles GET /runs/{executionID}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	executionID, ok := h.executionID(w, r)
	if !ok {
		return
	}
	run, err := h.store.GetRun(r.Context(), executionID)
	if err != nil {
		h.writeLookupError(w, r, executionID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRun(run))
}

// HandleGetScore handles GET /runs/{executionID}/score.
func (h *Handler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	executionID, ok := h.executionID(w, r)
	if !ok {
		return
	}
	run, err := h.store.GetRun(r.Context(), executionID)
	if err != nil {
		h.writeLookupError(w, r, executionID, err)
		return
	}
	overall, err := h.store.GetOverallScore(r.Context(), executionID)
	if err != nil {
		h.writeLookupError(w, r, executionID, err)
		return
	}
	if overall == nil {
		httputil.WriteError(w, httputil.CodeConflict,
			fmt.Sprintf("run is %s, score not available", run.Status))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromOverall(executionID, overall))
}

func (h *Handler) executionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		httputil.WriteError(w, httputil.CodeBadRequest, "execution ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, executionID uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteError(w, httputil.CodeNotFound, "no such run")
		return
	}
	h.logger.ErrorContext(r.Context(), "run lookup failed",
		"request_id", middleware.GetRequestID(r.Context()),
		"execution_id", executionID,
		"error", err,
	)
	httputil.WriteError(w, httputil.CodeInternal, "lookup failed")
}
