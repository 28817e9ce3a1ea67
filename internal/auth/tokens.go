// AngelaMos | 2026
// tokens.go

package auth

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

// Token kind discriminators. Verification checks the kind independently of
// cryptographic validity: a structurally valid token of the wrong kind is
// rejected.
const (
	tokenKindAccess     = "access"
	tokenKindRefresh    = "refresh"
	tokenKindMFAPending = "mfa_pending"
)

const (
	mfaPendingLifetime = 5 * time.Minute
	fallbackLifetime   = time.Hour
	baselineRole       = principal.RoleEstudiante
)

type Issuer struct {
	key        jwk.Key
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(
	secret string,
	accessLifetime, refreshLifetime string,
) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("new issuer: empty signing secret")
	}

	key, err := jwk.Import([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	if setErr := key.Set(jwk.AlgorithmKey, jwa.HS256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	return &Issuer{
		key:        key,
		accessTTL:  ParseLifetime(accessLifetime),
		refreshTTL: ParseLifetime(refreshLifetime),
	}, nil
}

type AccessClaims struct {
	UserID string
	Email  string
	Role   string
	Roles  []string
	JTI    string
}

type RefreshClaims struct {
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

type MFAPendingClaims struct {
	UserID string
	Email  string
}

// IssueAccess mints an access token. Roles are normalized to a non-empty
// list; the payload carries both the first role (single-role consumers
// predate the role list) and the full set.
func (i *Issuer) IssueAccess(
	subjectID, email string,
	roles []string,
) (string, error) {
	normalized := normalizeRoles(roles)
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(subjectID).
		IssuedAt(now).
		Expiration(now.Add(i.accessTTL)).
		Claim("email", email).
		Claim("role", normalized[0]).
		Claim("roles", normalized).
		Claim("type", tokenKindAccess).
		Build()
	if err != nil {
		return "", fmt.Errorf("build access token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), i.key))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return string(signed), nil
}

// IssueRefresh mints a refresh token with a fresh jti. The payload
// deliberately excludes email and roles: authorization is re-derived from
// the subject id at use time, so a leaked refresh token carries as little
// as possible.
func (i *Issuer) IssueRefresh(subjectID string) (string, string, error) {
	jti := uuid.New().String()
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(jti).
		Subject(subjectID).
		IssuedAt(now).
		Expiration(now.Add(i.refreshTTL)).
		Claim("type", tokenKindRefresh).
		Build()
	if err != nil {
		return "", "", fmt.Errorf("build refresh token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), i.key))
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	return string(signed), jti, nil
}

func (i *Issuer) IssueMFAPending(subjectID, email string) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(subjectID).
		IssuedAt(now).
		Expiration(now.Add(mfaPendingLifetime)).
		Claim("email", email).
		Claim("type", tokenKindMFAPending).
		Build()
	if err != nil {
		return "", fmt.Errorf("build mfa pending token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), i.key))
	if err != nil {
		return "", fmt.Errorf("sign mfa pending token: %w", err)
	}

	return string(signed), nil
}

// VerifyAccess returns nil on any failure: wrong kind, bad signature,
// expiry, missing claim. Callers decide how to react to nil.
func (i *Issuer) VerifyAccess(tokenString string) *AccessClaims {
	token, err := i.parse(tokenString, tokenKindAccess)
	if err != nil {
		slog.Debug("access token rejected", "reason", err)
		return nil
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil
	}

	var email string
	//nolint:errcheck // email is optional on legacy tokens
	_ = token.Get("email", &email)

	var role string
	if err := token.Get("role", &role); err != nil {
		return nil
	}

	roles := rolesClaim(token)
	if len(roles) == 0 {
		roles = []string{role}
	}

	jti, _ := token.JwtID()

	return &AccessClaims{
		UserID: subject,
		Email:  email,
		Role:   role,
		Roles:  roles,
		JTI:    jti,
	}
}

// VerifyRefresh raises a single uniform unauthorized error for every
// failure mode; the distinction is logged, never surfaced.
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := i.parse(tokenString, tokenKindRefresh)
	if err != nil {
		slog.Debug("refresh token rejected", "reason", err)
		return nil, fmt.Errorf("verify refresh token: %w", core.ErrTokenInvalid)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		slog.Debug("refresh token rejected", "reason", "missing subject")
		return nil, fmt.Errorf("verify refresh token: %w", core.ErrTokenInvalid)
	}

	jti, ok := token.JwtID()
	if !ok || jti == "" {
		slog.Debug("refresh token rejected", "reason", "missing jti")
		return nil, fmt.Errorf("verify refresh token: %w", core.ErrTokenInvalid)
	}

	expiresAt, _ := token.Expiration()

	return &RefreshClaims{
		UserID:    subject,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

func (i *Issuer) VerifyMFAPending(tokenString string) *MFAPendingClaims {
	token, err := i.parse(tokenString, tokenKindMFAPending)
	if err != nil {
		slog.Debug("mfa pending token rejected", "reason", err)
		return nil
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil
	}

	var email string
	if err := token.Get("email", &email); err != nil {
		return nil
	}

	return &MFAPendingClaims{UserID: subject, Email: email}
}

func (i *Issuer) parse(tokenString, wantKind string) (jwt.Token, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), i.key),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	var kind string
	if err := token.Get("type", &kind); err != nil {
		return nil, fmt.Errorf("missing type claim")
	}
	if kind != wantKind {
		return nil, fmt.Errorf("wrong token kind %q, want %q", kind, wantKind)
	}

	return token, nil
}

// rolesClaim reads the "roles" array. A parsed token hands array claims
// back as []interface{}, never []string, so the elements are converted
// one by one; anything non-string is skipped.
func rolesClaim(token jwt.Token) []string {
	var raw []interface{}
	if err := token.Get("roles", &raw); err != nil {
		return nil
	}

	roles := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			roles = append(roles, s)
		}
	}

	return roles
}

// RemainingTTL computes how long a verified refresh token has left,
// floored at zero. A payload with no expiry at all also reports zero so it
// can never be blacklisted forever.
func RemainingTTL(claims *RefreshClaims) time.Duration {
	if claims == nil || claims.ExpiresAt.IsZero() {
		return 0
	}

	remaining := time.Until(claims.ExpiresAt)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// ParseLifetime converts duration strings in the "7d"/"5m" dialect shared
// with the frontend env files. Unparsable input falls back to one hour; an
// operator typo must never take logins down.
func ParseLifetime(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallbackLifetime
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		slog.Warn("unparsable token lifetime, using fallback",
			"input", s,
			"fallback", fallbackLifetime,
		)
		return fallbackLifetime
	}

	switch unit {
	case 's':
		return time.Duration(value) * time.Second
	case 'm':
		return time.Duration(value) * time.Minute
	case 'h':
		return time.Duration(value) * time.Hour
	case 'd':
		return time.Duration(value) * 24 * time.Hour
	}

	slog.Warn("unparsable token lifetime, using fallback",
		"input", s,
		"fallback", fallbackLifetime,
	)
	return fallbackLifetime
}

// AccessTTL is exposed for cookie max-age alignment.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func normalizeRoles(roles []string) []string {
	normalized := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			normalized = append(normalized, r)
		}
	}

	if len(normalized) == 0 {
		return []string{baselineRole}
	}

	return normalized
}
