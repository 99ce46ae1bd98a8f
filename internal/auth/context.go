package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/pawlog/internal/common"
)

type contextKey struct{}

// LocalActor is the actor used when the server runs without a JWT secret.
const LocalActor = "local"

// SystemActor is recorded when a mutation carries no identity at all, such as
// CLI maintenance commands.
const SystemActor = "system"

type AuthContext struct {
	Actor   string
	Pets    []string
	AllPets bool
	TokenID string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// Actor returns the identity to record in audit fields.
func Actor(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.Actor == "" {
		return SystemActor
	}
	return ac.Actor
}

func CanAccess(ctx context.Context, pet string) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.AllPets || slices.Contains(ac.Pets, pet)
}

// Guard authorizes document access by pet. Contexts without an AuthContext
// belong to trusted in-process callers (CLI, background jobs) and pass.
func Guard(ctx context.Context, owner string) error {
	if _, ok := FromContext(ctx); !ok {
		return nil
	}
	if !CanAccess(ctx, owner) {
		return fmt.Errorf("pet %s: %w", owner, common.ErrPermissionDenied)
	}
	return nil
}
