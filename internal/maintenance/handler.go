package maintenance

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/session"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Handler exposes block maintenance over HTTP. Every route requires an
// admin actor.
type Handler struct {
	coordinator *Coordinator
	logger      *logging.Logger
}

// NewHandler creates a maintenance HTTP handler.
func NewHandler(coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, logger: logger}
}

// RegisterRoutes mounts maintenance endpoints.
// Expected to be mounted under /api/v1/blocks
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/", h.apply)
	r.Post("/{groupID}/reactivation/preview", h.reactivationPreview)
	r.Delete("/{groupID}", h.reactivationApply)
}

type blockRequest struct {
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	DateFrom        string     `json:"date_from"`
	DateTo          string     `json:"date_to"`
	Reason          string     `json:"reason,omitempty"`
	AnnualRecurring bool       `json:"annual_recurring"`
	Confirm         bool       `json:"confirm"`
}

func (b blockRequest) candidate() (BlockCandidate, error) {
	from, err := time.Parse(blocks.DateLayout, b.DateFrom)
	if err != nil {
		return BlockCandidate{}, httperr.Validation("invalid_range", "date_from must be YYYY-MM-DD")
	}
	to, err := time.Parse(blocks.DateLayout, b.DateTo)
	if err != nil {
		return BlockCandidate{}, httperr.Validation("invalid_range", "date_to must be YYYY-MM-DD")
	}
	if to.Before(from) && !b.AnnualRecurring {
		return BlockCandidate{}, httperr.Validation("invalid_range",
			"date_to may only precede date_from on an annual recurring block")
	}
	c := BlockCandidate{
		ProviderID:      b.ProviderID,
		DateFrom:        from,
		DateTo:          to,
		Reason:          b.Reason,
		AnnualRecurring: b.AnnualRecurring,
	}
	if b.GroupID != nil {
		c.GroupID = *b.GroupID
	}
	return c, nil
}

func requireAdmin(r *http.Request) error {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok || actor.Kind != session.KindAdmin {
		return httperr.Policy("admin_required", "block maintenance requires an admin actor")
	}
	return nil
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	candidate, err := req.candidate()
	if err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	preview, err := h.coordinator.Preview(r.Context(), candidate)
	if err != nil {
		h.logger.Error("maintenance handler: preview", "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	if !req.Confirm {
		httperr.WriteJSON(w, httperr.Validation("confirm_required",
			"pass confirm=true after reviewing the preview"))
		return
	}
	candidate, err := req.candidate()
	if err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	batch, err := h.coordinator.Apply(r.Context(), candidate, true)
	if err != nil {
		h.logger.Error("maintenance handler: apply", "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(batch)
}

func (h *Handler) reactivationPreview(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_group", "group id must be a uuid"))
		return
	}
	preview, err := h.coordinator.ReactivationPreview(r.Context(), groupID)
	if err != nil {
		h.logger.Error("maintenance handler: reactivation preview", "group_id", groupID, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

func (h *Handler) reactivationApply(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_group", "group id must be a uuid"))
		return
	}
	batch, err := h.coordinator.ReactivationApply(r.Context(), groupID)
	if err != nil {
		h.logger.Error("maintenance handler: reactivation apply", "group_id", groupID, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batch)
}
