// AngelaMos | 2026
// ownership_test.go

package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

func TestOwnershipGuard(t *testing.T) {
	lookups := 0
	guard := NewOwnershipGuard(OwnerResolverFunc(
		func(_ context.Context, resourceID string) (string, error) {
			lookups++
			if resourceID == "est-1" {
				return "tutor-1", nil
			}
			return "", errors.New("no such resource")
		},
	))
	ctx := context.Background()

	t.Run("owner passes", func(t *testing.T) {
		caller := &Caller{ID: "tutor-1", Roles: []string{"TUTOR"}}
		assert.NoError(t, guard.Check(ctx, caller, "est-1"))
	})

	t.Run("non-owner fails", func(t *testing.T) {
		caller := &Caller{ID: "tutor-2", Roles: []string{"TUTOR"}}
		assert.ErrorIs(t, guard.Check(ctx, caller, "est-1"), core.ErrForbidden)
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		before := lookups
		caller := &Caller{ID: "admin-1", Roles: []string{"ADMIN"}}

		assert.NoError(t, guard.Check(ctx, caller, "est-1"))
		assert.Equal(t, before, lookups, "admin path must skip the lookup")
	})

	t.Run("failed lookup denies", func(t *testing.T) {
		caller := &Caller{ID: "tutor-1", Roles: []string{"TUTOR"}}
		assert.ErrorIs(t, guard.Check(ctx, caller, "ghost"), core.ErrForbidden)
	})

	t.Run("anonymous denied before lookup", func(t *testing.T) {
		before := lookups

		assert.ErrorIs(t, guard.Check(ctx, nil, "est-1"), core.ErrUnauthorized)
		assert.ErrorIs(
			t,
			guard.Check(ctx, &Caller{}, "est-1"),
			core.ErrUnauthorized,
		)
		assert.Equal(t, before, lookups)
	})
}

type tutorLookupRepo struct {
	principal.Repository
}

func (tutorLookupRepo) FindEstudianteTutorID(
	_ context.Context,
	estudianteID string,
) (string, error) {
	if estudianteID == "est-1" {
		return "tutor-1", nil
	}
	return "", core.ErrNotFound
}

func TestEstudianteGuard(t *testing.T) {
	guard := NewEstudianteGuard(tutorLookupRepo{})
	ctx := context.Background()

	tutor := &Caller{ID: "tutor-1", Roles: []string{"TUTOR"}}
	assert.NoError(t, guard.Check(ctx, tutor, "est-1"))

	other := &Caller{ID: "tutor-2", Roles: []string{"TUTOR"}}
	assert.ErrorIs(t, guard.Check(ctx, other, "est-1"), core.ErrForbidden)

	assert.ErrorIs(t, guard.Check(ctx, tutor, "est-404"), core.ErrForbidden)
}
