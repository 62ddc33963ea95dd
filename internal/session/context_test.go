package session

import (
	"context"
	"testing"
)

func TestWithActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{Kind: KindProvider, ProviderID: "prov-7"})

	got, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("expected actor to be present")
	}
	if got.Kind != KindProvider || got.ProviderID != "prov-7" {
		t.Fatalf("unexpected actor: %+v", got)
	}
}

func TestActorFromContext_MissingOrInvalid(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected missing actor to return false")
	}

	ctx := WithActor(context.Background(), Actor{Kind: KindPatient})
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected patient actor without id to be invalid")
	}

	ctx = context.WithValue(context.Background(), actorKey, "not-an-actor")
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected non-Actor value to return false")
	}
}

func TestActorValid(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"admin needs no id", Actor{Kind: KindAdmin}, true},
		{"provider with id", Actor{Kind: KindProvider, ProviderID: "p"}, true},
		{"provider without id", Actor{Kind: KindProvider}, false},
		{"patient with id", Actor{Kind: KindPatient, PatientID: "x"}, true},
		{"unknown kind", Actor{Kind: "billing"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
