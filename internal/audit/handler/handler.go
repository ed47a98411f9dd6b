package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/audit"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/httputil"
	"heirloom/pkg/requestcontext"
)

// Handler exposes the audit trail read surface.
type Handler struct {
	store  audit.Store
	logger *slog.Logger
}

func New(store audit.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/{userID}", h.HandleListByUser)
}

// HandleListByUser handles GET /audit/{userID} requests.
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.store.ListByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// EventResponse is one audit event on the wire.
type EventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Risk      string    `json:"risk"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// FromEvents converts domain events to the HTTP shape, oldest first.
func FromEvents(events []audit.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		userID := ""
		if !e.UserID.IsNil() {
			userID = e.UserID.String()
		}
		out = append(out, EventResponse{
			Timestamp: e.Timestamp,
			UserID:    userID,
			Resource:  e.Resource,
			Action:    string(e.Action),
			Risk:      string(e.Risk),
			Reason:    e.Reason,
			Detail:    e.Detail,
			RequestID: e.RequestID,
			ActorID:   e.ActorID,
		})
	}
	return out
}
