package rooms

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/session"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Handler exposes the room roster over HTTP.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a rooms HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts room endpoints.
// Expected to be mounted under /api/v1/rooms
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Delete("/{id}", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.Error("rooms handler: list", "error", err)
		httperr.WriteJSON(w, httperr.Unavailable("rooms_unavailable", "the room roster could not be loaded", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func adminOnly(r *http.Request) error {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok || actor.Kind != session.KindAdmin {
		return httperr.Policy("admin_required", "room management requires an admin actor")
	}
	return nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := adminOnly(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	var body struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Label == "" {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "a label is required"))
		return
	}
	room := Room{Label: body.Label, Active: true}
	if err := h.store.Create(r.Context(), &room); err != nil {
		h.logger.Error("rooms handler: create", "error", err)
		httperr.WriteJSON(w, httperr.Transaction("room_create", "the room could not be created", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(room)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := adminOnly(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_id", "room id must be a uuid"))
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		h.logger.Error("rooms handler: deactivate", "room_id", id, "error", err)
		httperr.WriteJSON(w, httperr.NotFound("room_not_found", "no active room with that id"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
