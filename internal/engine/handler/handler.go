package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/engine"
	id "heirloom/pkg/domain"
	dErrors "heirloom/pkg/domain-errors"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// Activator defines the orchestrator operations exposed over HTTP.
type Activator interface {
	TriggerManually(ctx context.Context, userID id.UserID) (*engine.UserOutcome, error)
	RecordDeathClaim(ctx context.Context, userID id.UserID) (*engine.UserOutcome, error)
	Verify(ctx context.Context, userID id.UserID) (*engine.UserOutcome, error)
}

// BatchRunner defines the batch entry point.
type BatchRunner interface {
	RunOnce(ctx context.Context) (*engine.RunSummary, error)
}

// Handler wires engine endpoints to the orchestrator and runner.
type Handler struct {
	activator Activator
	runner    BatchRunner
	logger    *slog.Logger
}

// New constructs an engine handler with its dependencies.
func New(activator Activator, runner BatchRunner, logger *slog.Logger) *Handler {
	return &Handler{
		activator: activator,
		runner:    runner,
		logger:    logger,
	}
}

// Register mounts the unauthenticated engine endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/inheritance/run", h.HandleRun)
	r.Post("/inheritance/claim/{userID}", h.HandleClaim)
}

// RegisterProtected mounts operator-only endpoints; the caller applies the
// auth middleware.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/inheritance/trigger/{userID}", h.HandleTrigger)
	r.Post("/inheritance/verify/{userID}", h.HandleVerify)
}

// HandleRun handles POST /inheritance/run requests.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	summary, err := h.runner.RunOnce(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch run failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "batch run failed"))
		return
	}

	h.logger.InfoContext(ctx, "batch run served",
		"request_id", requestID,
		"triggered", summary.TriggeredCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleTrigger handles POST /inheritance/trigger/{userID} requests.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.activator.TriggerManually(ctx, userID)
	if err != nil {
		h.writeActivationError(ctx, w, requestID, userID, "manual trigger failed", err)
		return
	}

	h.logger.InfoContext(ctx, "manual trigger served",
		"request_id", requestID,
		"user_id", userID,
		"actor_id", requestcontext.ActorID(ctx),
		"triggered", outcome.Triggered,
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(outcome))
}

// HandleClaim handles POST /inheritance/claim/{userID} requests.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.activator.RecordDeathClaim(ctx, userID)
	if err != nil {
		h.writeActivationError(ctx, w, requestID, userID, "death claim failed", err)
		return
	}

	h.logger.InfoContext(ctx, "death claim recorded",
		"request_id", requestID,
		"user_id", userID,
		"awaiting", outcome.Awaiting,
	)
	httputil.WriteJSON(w, http.StatusAccepted, FromOutcome(outcome))
}

// HandleVerify handles POST /inheritance/verify/{userID} requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.activator.Verify(ctx, userID)
	if err != nil {
		h.writeActivationError(ctx, w, requestID, userID, "verification failed", err)
		return
	}

	h.logger.InfoContext(ctx, "verification served",
		"request_id", requestID,
		"user_id", userID,
		"actor_id", requestcontext.ActorID(ctx),
		"triggered", outcome.Triggered,
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(outcome))
}

func (h *Handler) writeActivationError(ctx context.Context, w http.ResponseWriter, requestID string, userID id.UserID, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestID,
		"user_id", userID,
		"error", err,
	)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found"))
	case errors.Is(err, sentinel.ErrInvalidState):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidState, "no activation in the required state"))
	default:
		httputil.WriteError(w, err)
	}
}
