// Package session models who a request is acting as. The actor is resolved
// once at the edge and passed explicitly through context; no package-level
// "current role" state exists anywhere in the engine.
package session

import "context"

// Kind identifies which portal the caller is acting through.
type Kind string

const (
	KindPatient  Kind = "patient"
	KindProvider Kind = "provider"
	KindAdmin    Kind = "admin"
)

// Actor is the resolved session context for one request.
type Actor struct {
	Kind       Kind
	PatientID  string
	ProviderID string
}

// Valid reports whether the actor carries the id its kind requires.
func (a Actor) Valid() bool {
	switch a.Kind {
	case KindPatient:
		return a.PatientID != ""
	case KindProvider:
		return a.ProviderID != ""
	case KindAdmin:
		return true
	default:
		return false
	}
}

type ctxKey string

const actorKey ctxKey = "scheduling.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the actor if present and valid.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	a, ok := val.(Actor)
	return a, ok && a.Valid()
}
