package middleware

import (
	"net/http"

	"github.com/vidaclinic/scheduling-engine/internal/session"
)

// Actor resolves the request's acting identity from the gateway-set
// X-Actor-* headers and stores it in context. Requests without a valid
// actor pass through anonymously; handlers that need one enforce it.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := session.Actor{
				Kind:       session.Kind(r.Header.Get("X-Actor-Kind")),
				PatientID:  r.Header.Get("X-Actor-Patient"),
				ProviderID: r.Header.Get("X-Actor-Provider"),
			}
			if actor.Valid() {
				r = r.WithContext(session.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
