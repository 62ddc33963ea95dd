package slots

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// PreserveLookup resolves an appointment id to its current slot, so the
// preserve query parameter can name the appointment being edited. Wired from
// the appointments package to keep this one free of a dependency on it.
type PreserveLookup func(ctx context.Context, appointmentID uuid.UUID) (*Preserve, error)

// Handler exposes slot computation over HTTP.
type Handler struct {
	generator *Generator
	lookup    PreserveLookup
	logger    *logging.Logger
}

// NewHandler creates a slots HTTP handler. lookup may be nil to disable the
// preserve parameter.
func NewHandler(generator *Generator, lookup PreserveLookup, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{generator: generator, lookup: lookup, logger: logger}
}

// RegisterRoutes mounts slot endpoints.
// Expected to be mounted under /api/v1/providers/{providerID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/slots", h.getSlots)
}

func (h *Handler) getSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_provider", "provider id must be a uuid"))
		return
	}
	date, err := time.Parse(blocks.DateLayout, r.URL.Query().Get("date"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_date", "date must be YYYY-MM-DD"))
		return
	}

	req := Request{ProviderID: providerID, Date: date}
	if raw := r.URL.Query().Get("room"); raw != "" {
		roomID, err := uuid.Parse(raw)
		if err != nil {
			httperr.WriteJSON(w, httperr.Validation("invalid_room", "room id must be a uuid"))
			return
		}
		req.RoomID = roomID
	}
	if raw := r.URL.Query().Get("preserve"); raw != "" {
		preserve, err := h.preserveFor(r, raw)
		if err != nil {
			httperr.WriteJSON(w, err)
			return
		}
		req.Preserve = preserve
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Error("slots handler: generate", "provider_id", providerID, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// preserveFor loads the appointment named by the preserve query parameter so
// its current slot stays selectable during an edit.
func (h *Handler) preserveFor(r *http.Request, raw string) (*Preserve, error) {
	apptID, err := uuid.Parse(raw)
	if err != nil {
		return nil, httperr.Validation("invalid_preserve", "preserve must be an appointment uuid")
	}
	if h.lookup == nil {
		return nil, httperr.Validation("invalid_preserve", "preserve is not supported")
	}
	return h.lookup(r.Context(), apptID)
}
