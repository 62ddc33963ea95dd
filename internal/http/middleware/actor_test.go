package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vidaclinic/scheduling-engine/internal/session"
)

func TestActorResolvesValidHeaders(t *testing.T) {
	var got session.Actor
	var ok bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = session.ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-Kind", "patient")
	req.Header.Set("X-Actor-Patient", "p-123")
	Actor()(handler).ServeHTTP(httptest.NewRecorder(), req)

	if !ok || got.Kind != session.KindPatient || got.PatientID != "p-123" {
		t.Fatalf("unexpected actor: %+v (ok=%v)", got, ok)
	}
}

func TestActorIgnoresInvalidHeaders(t *testing.T) {
	var ok bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = session.ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor-Kind", "patient") // no patient id
	Actor()(handler).ServeHTTP(httptest.NewRecorder(), req)

	if ok {
		t.Fatal("invalid actor must not be stored")
	}
}
