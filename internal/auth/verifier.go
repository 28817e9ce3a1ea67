// AngelaMos | 2026
// verifier.go

package auth

import (
	"context"
	"fmt"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/middleware"
)

// VerifyAccessToken implements middleware.TokenVerifier. Signature and
// type checks happen locally; the revocation set adds one redis hit so a
// logged-out token dies before its expiry does.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims := s.issuer.VerifyAccess(token)
	if claims == nil {
		return nil, core.ErrTokenInvalid
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	if revoked {
		return nil, core.ErrTokenRevoked
	}

	return &middleware.AccessTokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		Roles:  claims.Roles,
		JTI:    claims.JTI,
	}, nil
}
