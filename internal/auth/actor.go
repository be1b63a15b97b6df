// Package auth implements the Actor capability: every operation is
// invoked on behalf of an Actor, and each operation's required level
// (admin/authed/public) is checked against it. No anonymous actor is
// ever exposed to an operation — requests that carry no credential
// simply produce the zero-value public Actor, and that actor is only
// accepted by operations that explicitly require nothing more.
package auth

import (
	"context"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
)

// Level is the three-tier capability hierarchy: public, authed, admin.
type Level int

const (
	LevelPublic Level = iota
	LevelAuthed
	LevelAdmin
)

// Actor is the authenticated caller of an operation, carried as a
// capability through context rather than re-derived by leaf packages
// from ambient state.
type Actor struct {
	Level Level
	// Email is the email claim of the caller's JWT, for both admin
	// (ADMIN_EMAILS) and authed actors; empty for the bcrypt-hashed
	// CONVEX_ADMIN_KEY bypass and for public actors.
	Email string
}

func (a Actor) IsAdmin() bool  { return a.Level >= LevelAdmin }
func (a Actor) IsAuthed() bool { return a.Level >= LevelAuthed }

// Public is the actor assigned to a request that carried no credential.
var Public = Actor{Level: LevelPublic}

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor attaches an Actor to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// FromContext returns the Actor attached to ctx, or Public if none was
// attached (e.g. in a test that never ran the auth middleware).
func FromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	if !ok {
		return Public
	}
	return actor
}

// Require checks actor against the minimum Level an operation demands,
// returning apperror.KindUnauthorized/KindForbidden as appropriate.
// internal/api's operation wrappers invoke this directly, once per
// operation, against that operation's own minimum level.
func Require(actor Actor, min Level) error {
	if actor.Level >= min {
		return nil
	}
	if actor.Level == LevelPublic {
		return apperror.New(apperror.KindUnauthorized, "authentication required")
	}
	return apperror.New(apperror.KindForbidden, "admin privileges required")
}
