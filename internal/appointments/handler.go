package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/session"
	"github.com/vidaclinic/scheduling-engine/internal/slots"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Handler exposes the appointment lifecycle over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts appointment endpoints.
// Expected to be mounted under /api/v1/appointments
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.transition)
	r.Post("/{id}/reschedule", h.reschedule)
}

// RegisterProviderRoutes mounts the provider-scoped day listing.
// Expected to be mounted under /api/v1/providers/{providerID}
func (h *Handler) RegisterProviderRoutes(r chi.Router) {
	r.Get("/appointments", h.listDay)
}

type createRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	RoomID     uuid.UUID `json:"room_id"`
	Date       string    `json:"date"`
	StartMin   int       `json:"start_min"`
	Reason     string    `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	date, err := time.Parse(blocks.DateLayout, req.Date)
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_date", "date must be YYYY-MM-DD"))
		return
	}
	// A patient actor may only book for itself.
	if actor, ok := session.ActorFromContext(r.Context()); ok && actor.Kind == session.KindPatient {
		if actor.PatientID != req.PatientID.String() {
			httperr.WriteJSON(w, httperr.Policy("patient_mismatch",
				"a patient may only book their own appointments"))
			return
		}
	}

	a, err := h.service.Create(r.Context(), CreateInput{
		ProviderID: req.ProviderID,
		PatientID:  req.PatientID,
		RoomID:     req.RoomID,
		Date:       date,
		StartMin:   req.StartMin,
		Reason:     req.Reason,
	})
	if err != nil {
		h.logger.Error("appointments handler: create", "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_id", "appointment id must be a uuid"))
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

type transitionRequest struct {
	Status Status `json:"status"`
	NoShow bool   `json:"no_show"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_id", "appointment id must be a uuid"))
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	// Completing a visit and flagging a no-show are staff actions.
	if req.Status == StatusCompleted || req.NoShow {
		if actor, ok := session.ActorFromContext(r.Context()); !ok || actor.Kind == session.KindPatient {
			httperr.WriteJSON(w, httperr.Policy("staff_required",
				"this status change requires a provider or admin actor"))
			return
		}
	}

	a, err := h.service.Transition(r.Context(), id, req.Status, req.NoShow)
	if err != nil {
		h.logger.Error("appointments handler: transition", "appointment_id", id, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

type rescheduleRequest struct {
	Date     string    `json:"date"`
	StartMin int       `json:"start_min"`
	RoomID   uuid.UUID `json:"room_id"`
	Reason   string    `json:"reason"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_id", "appointment id must be a uuid"))
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	date, err := time.Parse(blocks.DateLayout, req.Date)
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_date", "date must be YYYY-MM-DD"))
		return
	}

	a, err := h.service.Reschedule(r.Context(), id, RescheduleInput{
		Date:     date,
		StartMin: req.StartMin,
		RoomID:   req.RoomID,
		Reason:   req.Reason,
	})
	if err != nil {
		h.logger.Error("appointments handler: reschedule", "appointment_id", id, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

func (h *Handler) listDay(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.service.ListDay(r.Context(), providerID, date)
	if err != nil {
		h.logger.Error("appointments handler: list day", "provider_id", providerID, "error", err)
		httperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"appointments": list,
		"count":        len(list),
	})
}

// PreserveLookup adapts the store for the slots handler's preserve query
// parameter.
func PreserveLookup(store *Store) slots.PreserveLookup {
	return func(ctx context.Context, appointmentID uuid.UUID) (*slots.Preserve, error) {
		a, err := store.GetByID(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		return &slots.Preserve{
			AppointmentID: a.ID,
			Date:          a.Date,
			StartMin:      a.StartMin,
			RoomID:        a.RoomID,
		}, nil
	}
}
