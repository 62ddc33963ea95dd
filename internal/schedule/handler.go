package schedule

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/session"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Handler exposes weekly schedule maintenance over HTTP. Entries are never
// edited in place: staff replace a provider's entry set, and the old rows
// are deactivated rather than deleted.
type Handler struct {
	store    *Store
	onChange func(providerID uuid.UUID)
	logger   *logging.Logger
}

// NewHandler creates a schedule HTTP handler. onChange fires after a write
// so slot caches can be refreshed; it may be nil.
func NewHandler(store *Store, onChange func(providerID uuid.UUID), logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, onChange: onChange, logger: logger}
}

// RegisterRoutes mounts schedule endpoints.
// Expected to be mounted under /api/v1/providers/{providerID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/schedule", h.list)
	r.Put("/schedule", h.replace)
}

func staffOnly(r *http.Request) error {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok || actor.Kind == session.KindPatient {
		return httperr.Policy("staff_required", "schedule editing requires a provider or admin actor")
	}
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_provider", "provider id must be a uuid"))
		return
	}
	entries, err := h.store.ListByProvider(r.Context(), providerID)
	if err != nil {
		h.logger.Error("schedule handler: list", "provider_id", providerID, "error", err)
		httperr.WriteJSON(w, httperr.Unavailable("schedule_unavailable",
			"the provider schedule could not be loaded", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

type entryRequest struct {
	Weekday  int `json:"weekday"`
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

// replace deactivates the provider's active entries and records the new set.
func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	if err := staffOnly(r); err != nil {
		httperr.WriteJSON(w, err)
		return
	}
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_provider", "provider id must be a uuid"))
		return
	}
	var body struct {
		Entries []entryRequest `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_body", "request body must be JSON"))
		return
	}
	for _, e := range body.Entries {
		if e.Weekday < 0 || e.Weekday > 6 || e.EndMin <= e.StartMin {
			httperr.WriteJSON(w, httperr.Validation("invalid_entry",
				"entries need weekday 0-6 and end_min after start_min"))
			return
		}
	}

	existing, err := h.store.ListByProvider(r.Context(), providerID)
	if err != nil {
		h.logger.Error("schedule handler: replace: list", "provider_id", providerID, "error", err)
		httperr.WriteJSON(w, httperr.Unavailable("schedule_unavailable",
			"the provider schedule could not be loaded", err))
		return
	}
	for _, entry := range existing {
		if !entry.Active {
			continue
		}
		if err := h.store.Deactivate(r.Context(), entry.ID); err != nil {
			h.logger.Error("schedule handler: replace: deactivate", "entry_id", entry.ID, "error", err)
			httperr.WriteJSON(w, httperr.Transaction("schedule_replace", "the schedule could not be replaced", err))
			return
		}
	}
	created := make([]Entry, 0, len(body.Entries))
	for _, e := range body.Entries {
		entry := Entry{
			ProviderID: providerID,
			Weekday:    e.Weekday,
			StartMin:   e.StartMin,
			EndMin:     e.EndMin,
			Active:     true,
		}
		if err := h.store.Create(r.Context(), &entry); err != nil {
			h.logger.Error("schedule handler: replace: create", "provider_id", providerID, "error", err)
			httperr.WriteJSON(w, httperr.Transaction("schedule_replace", "the schedule could not be replaced", err))
			return
		}
		created = append(created, entry)
	}

	if h.onChange != nil {
		h.onChange(providerID)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": created,
		"count":   len(created),
	})
}
