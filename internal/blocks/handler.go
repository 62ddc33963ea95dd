package blocks

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Handler exposes the resolved block calendar over HTTP.
type Handler struct {
	resolver *Resolver
	logger   *logging.Logger
}

// NewHandler creates a block calendar HTTP handler.
func NewHandler(resolver *Resolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{resolver: resolver, logger: logger}
}

// RegisterRoutes mounts calendar endpoints.
// Expected to be mounted under /api/v1/providers/{providerID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/blocks", h.getCalendar)
}

func (h *Handler) getCalendar(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_provider", "provider id must be a uuid"))
		return
	}
	from, err := time.Parse(DateLayout, r.URL.Query().Get("from"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_range", "from must be YYYY-MM-DD"))
		return
	}
	to, err := time.Parse(DateLayout, r.URL.Query().Get("to"))
	if err != nil {
		httperr.WriteJSON(w, httperr.Validation("invalid_range", "to must be YYYY-MM-DD"))
		return
	}
	if to.Before(from) {
		httperr.WriteJSON(w, httperr.Validation("invalid_range", "to must not precede from"))
		return
	}

	days, err := h.resolver.Range(r.Context(), ProviderScope(providerID), from, to)
	if err != nil {
		h.logger.Error("blocks handler: range", "provider_id", providerID, "error", err)
		httperr.WriteJSON(w, httperr.Unavailable("blocks_unavailable",
			"the block calendar could not be loaded", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"from": Day(from).Format(DateLayout),
		"to":   Day(to).Format(DateLayout),
		"days": days,
	})
}
