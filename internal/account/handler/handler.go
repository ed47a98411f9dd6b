package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/audit"
	"heirloom/internal/notify"
	id "heirloom/pkg/domain"
	dErrors "heirloom/pkg/domain-errors"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// ActivityRecorder is the slice of the account store this handler needs.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID id.UserID, at time.Time) error
}

// Handler exposes the activity hook collaborators call on qualifying user
// actions (login, vault access).
type Handler struct {
	accounts ActivityRecorder
	sink     *notify.Sink
	logger   *slog.Logger
}

func New(accounts ActivityRecorder, sink *notify.Sink, logger *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		sink:     sink,
		logger:   logger,
	}
}

// Register mounts account endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/activity/{userID}", h.HandleRecordActivity)
}

// HandleRecordActivity handles POST /activity/{userID} requests.
func (h *Handler) HandleRecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	now := requestcontext.Now(ctx)
	if err := h.accounts.RecordActivity(ctx, userID, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to record activity",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.sink.Record(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Resource:  "user/" + userID.String(),
		Action:    audit.ActionActivityRecorded,
		Risk:      audit.ActionActivityRecorded.Risk(),
		RequestID: requestID,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "recorded",
		"recorded_at": now.Format(time.RFC3339),
	})
}
