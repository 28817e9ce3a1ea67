// AngelaMos | 2026
// roles.go

package authz

import (
	"strings"

	"github.com/aulamagica/backend/internal/principal"
)

// roleRank orders the platform roles from least to most privileged.
// Unknown role strings rank zero, below every real role.
var roleRank = map[string]int{
	principal.RoleEstudiante: 1,
	principal.RoleTutor:      2,
	principal.RoleDocente:    3,
	principal.RoleAdmin:      4,
	principal.RoleSuperAdmin: 5,
}

func Rank(role string) int {
	return roleRank[strings.ToUpper(strings.TrimSpace(role))]
}

// BestRank is the highest rank among the held roles.
func BestRank(held []string) int {
	best := 0
	for _, role := range held {
		if r := Rank(role); r > best {
			best = r
		}
	}
	return best
}

// Allowed decides whether a caller holding the given roles may pass a
// gate that demands the required ones. A caller passes on an exact role
// match, or when their best rank reaches the gate's highest requirement,
// so an ADMIN walks through a DOCENTE gate without holding DOCENTE.
//
// An unauthenticated caller (no roles at all) is always refused, even at
// gates with no requirements.
func Allowed(held, required []string) bool {
	if len(held) == 0 {
		return false
	}
	if len(required) == 0 {
		return true
	}

	heldSet := make(map[string]struct{}, len(held))
	for _, role := range held {
		heldSet[strings.ToUpper(strings.TrimSpace(role))] = struct{}{}
	}

	needed := 0
	for _, role := range required {
		normalized := strings.ToUpper(strings.TrimSpace(role))
		if _, ok := heldSet[normalized]; ok {
			return true
		}
		if r := Rank(normalized); r > needed {
			needed = r
		}
	}

	// Every required role was unrecognized and none matched exactly.
	// Refusing beats silently turning the gate into "any authenticated".
	if needed == 0 {
		return false
	}

	return BestRank(held) >= needed
}
