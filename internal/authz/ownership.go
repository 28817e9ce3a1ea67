// AngelaMos | 2026
// ownership.go

package authz

import (
	"context"
	"fmt"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

// Caller is the authenticated identity a guard decides about.
type Caller struct {
	ID    string
	Roles []string
}

// OwnerResolver looks up who owns a resource. The auth layer does not
// know resource schemas; each feature hands the guard its own resolver.
type OwnerResolver interface {
	OwnerID(ctx context.Context, resourceID string) (string, error)
}

type OwnerResolverFunc func(ctx context.Context, resourceID string) (string, error)

func (f OwnerResolverFunc) OwnerID(ctx context.Context, resourceID string) (string, error) {
	return f(ctx, resourceID)
}

// OwnershipGuard allows access to a resource for its owner and for
// admin-ranked callers. Everything else, including a failed owner
// lookup, is refused.
type OwnershipGuard struct {
	resolver OwnerResolver
}

func NewOwnershipGuard(resolver OwnerResolver) *OwnershipGuard {
	return &OwnershipGuard{resolver: resolver}
}

// EstudianteResolver resolves an estudiante resource to its guardian
// tutor, so tutor-ranked callers only reach the students under their
// guardianship.
func EstudianteResolver(repo principal.Repository) OwnerResolver {
	return OwnerResolverFunc(
		func(ctx context.Context, estudianteID string) (string, error) {
			return repo.FindEstudianteTutorID(ctx, estudianteID)
		},
	)
}

// NewEstudianteGuard is the guard feature handlers reach for when the
// resource is a student record.
func NewEstudianteGuard(repo principal.Repository) *OwnershipGuard {
	return NewOwnershipGuard(EstudianteResolver(repo))
}

func (g *OwnershipGuard) Check(
	ctx context.Context,
	caller *Caller,
	resourceID string,
) error {
	if caller == nil || caller.ID == "" {
		// Refuse before touching the resolver so anonymous probes never
		// trigger resource lookups.
		return core.ErrUnauthorized
	}

	if BestRank(caller.Roles) >= Rank(principal.RoleAdmin) {
		return nil
	}

	ownerID, err := g.resolver.OwnerID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("resolve owner of %q: %w", resourceID, core.ErrForbidden)
	}

	if ownerID != caller.ID {
		return core.ErrForbidden
	}

	return nil
}
