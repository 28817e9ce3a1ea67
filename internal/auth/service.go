// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	// errMissingEmail marks a row that authenticated but cannot receive a
	// token because its email column is empty. Surfaced to callers as a
	// plain unauthorized so the gap is not enumerable from outside.
	errMissingEmail = errors.New("principal has no email on record")
)

// CodeVerifier checks a one-time MFA code against an enrolled secret. The
// TOTP implementation lives with the MFA enrollment service; auth only
// consumes the verdict.
type CodeVerifier interface {
	Verify(secret, code string) bool
}

type CodeVerifierFunc func(secret, code string) bool

func (f CodeVerifierFunc) Verify(secret, code string) bool {
	return f(secret, code)
}

// DenyAllCodeVerifier refuses every code. It is the wiring default until
// an MFA backend is configured, so a misconfigured deployment fails
// closed instead of waving codes through.
type DenyAllCodeVerifier struct{}

func (DenyAllCodeVerifier) Verify(string, string) bool { return false }

type Service struct {
	principals principal.Repository
	throttle   *Throttle
	issuer     *Issuer
	blacklist  Blacklist
	events     EventSink
	mfa        CodeVerifier
}

func NewService(
	principals principal.Repository,
	throttle *Throttle,
	issuer *Issuer,
	blacklist Blacklist,
	events EventSink,
	mfa CodeVerifier,
) *Service {
	if mfa == nil {
		mfa = DenyAllCodeVerifier{}
	}
	return &Service{
		principals: principals,
		throttle:   throttle,
		issuer:     issuer,
		blacklist:  blacklist,
		events:     events,
		mfa:        mfa,
	}
}

// Login resolves an email credential against the staff tables in fixed
// order (tutores, docentes, admins) and authenticates the first match.
// Later tables are never consulted once a row matches, even when its
// password does not verify.
func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	origin string,
) (*LoginResult, error) {
	origin = normalizeOrigin(origin)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	tutor, err := s.principals.FindTutorByEmail(ctx, email)
	if err == nil {
		return s.loginTutor(ctx, tutor, req.Password, origin)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find tutor: %w", err)
	}

	docente, err := s.principals.FindDocenteByEmail(ctx, email)
	if err == nil {
		return s.loginDocente(ctx, docente, req.Password, origin)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find docente: %w", err)
	}

	admin, err := s.principals.FindAdminByEmail(ctx, email)
	if err == nil {
		return s.loginAdmin(ctx, admin, req.Password, origin)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find admin: %w", err)
	}

	// No row anywhere. Burn a dummy verification and record the failure
	// so unknown identifiers cost the same as known ones, in both time
	// and attempt accounting.
	core.VerifyPasswordTimingSafe(req.Password, nil)

	if err := s.throttle.CheckAndRecord(ctx, email, origin, false); err != nil {
		if errors.Is(err, core.ErrTooManyAttempts) {
			return nil, err
		}
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	return nil, ErrInvalidCredentials
}

func (s *Service) loginTutor(
	ctx context.Context,
	tutor *principal.Tutor,
	password, origin string,
) (*LoginResult, error) {
	err := s.verifyAndAccount(
		ctx,
		principal.KindTutor,
		tutor.ID,
		tutor.Email,
		tutor.PasswordHash,
		password,
		origin,
	)
	if err != nil {
		return nil, err
	}

	roles := principal.ParseRoles(tutor.Roles, principal.RoleTutor)

	result, err := s.staffSession(tutor.ID, tutor.Email, roles)
	if err != nil {
		return nil, err
	}
	result.User = toTutorProfile(tutor, roles)

	s.events.Emit(EventUserLoggedIn, map[string]any{
		"userId":   tutor.ID,
		"userType": string(principal.KindTutor),
		"email":    tutor.Email,
		"origin":   origin,
	})

	return result, nil
}

func (s *Service) loginDocente(
	ctx context.Context,
	docente *principal.Docente,
	password, origin string,
) (*LoginResult, error) {
	err := s.verifyAndAccount(
		ctx,
		principal.KindDocente,
		docente.ID,
		docente.Email,
		docente.PasswordHash,
		password,
		origin,
	)
	if err != nil {
		return nil, err
	}

	roles := principal.ParseRoles(docente.Roles, principal.RoleDocente)

	result, err := s.staffSession(docente.ID, docente.Email, roles)
	if err != nil {
		return nil, err
	}
	result.User = toDocenteProfile(docente, roles)

	s.events.Emit(EventUserLoggedIn, map[string]any{
		"userId":   docente.ID,
		"userType": string(principal.KindDocente),
		"email":    docente.Email,
		"origin":   origin,
	})

	return result, nil
}

func (s *Service) loginAdmin(
	ctx context.Context,
	admin *principal.Admin,
	password, origin string,
) (*LoginResult, error) {
	err := s.verifyAndAccount(
		ctx,
		principal.KindAdmin,
		admin.ID,
		admin.Email,
		admin.PasswordHash,
		password,
		origin,
	)
	if err != nil {
		return nil, err
	}

	if admin.MFAEnabled {
		// Password alone does not finish an MFA-enrolled admin's login:
		// no session tokens, no login event, only a short-lived pending
		// token to carry the handshake.
		pending, err := s.issuer.IssueMFAPending(admin.ID, admin.Email)
		if err != nil {
			return nil, fmt.Errorf("issue mfa token: %w", err)
		}
		return &LoginResult{
			RequiresMFA: true,
			MFAToken:    pending,
			Message:     "Se requiere verificación de segundo factor",
		}, nil
	}

	return s.adminSession(ctx, admin, origin)
}

func (s *Service) adminSession(
	ctx context.Context,
	admin *principal.Admin,
	origin string,
) (*LoginResult, error) {
	roles := principal.ParseRoles(admin.Roles, principal.RoleAdmin)

	result, err := s.staffSession(admin.ID, admin.Email, roles)
	if err != nil {
		return nil, err
	}
	result.User = toAdminProfile(admin, roles)

	s.events.Emit(EventUserLoggedIn, map[string]any{
		"userId":   admin.ID,
		"userType": string(principal.KindAdmin),
		"email":    admin.Email,
		"origin":   origin,
	})

	return result, nil
}

// LoginEstudiante authenticates a student by username. Students never hit
// the staff probe chain and carry extra first-login signals.
func (s *Service) LoginEstudiante(
	ctx context.Context,
	req EstudianteLoginRequest,
	origin string,
) (*LoginResult, error) {
	origin = normalizeOrigin(origin)
	username := strings.TrimSpace(req.Username)

	est, err := s.principals.FindEstudianteByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.VerifyPasswordTimingSafe(req.Password, nil)
			if terr := s.throttle.CheckAndRecord(ctx, username, origin, false); terr != nil {
				if errors.Is(terr, core.ErrTooManyAttempts) {
					return nil, terr
				}
				return nil, fmt.Errorf("record attempt: %w", terr)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find estudiante: %w", err)
	}

	err = s.verifyAndAccount(
		ctx,
		principal.KindEstudiante,
		est.ID,
		username,
		est.PasswordHash,
		req.Password,
		origin,
	)
	if err != nil {
		return nil, err
	}

	roles := principal.ParseRoles(est.Roles, principal.RoleEstudiante)

	tokenEmail := ""
	if est.Email != nil {
		tokenEmail = *est.Email
	}

	result, err := s.issueSession(est.ID, tokenEmail, roles)
	if err != nil {
		return nil, err
	}
	result.User = toEstudianteProfile(est, roles)

	esPrimerLogin := false
	logros, err := s.principals.CountLogros(ctx, est.ID)
	if err != nil {
		slog.Warn("count logros failed",
			"estudiante_id", est.ID,
			"error", err,
		)
	} else {
		esPrimerLogin = logros == 0
	}

	s.events.Emit(EventEstudianteLoggedIn, map[string]any{
		"estudianteId":  est.ID,
		"username":      est.Username,
		"esPrimerLogin": esPrimerLogin,
		"origin":        origin,
	})

	if esPrimerLogin {
		s.events.Emit(EventEstudiantePrimerLogin, map[string]any{
			"estudianteId": est.ID,
			"username":     est.Username,
		})
	}

	return result, nil
}

// CompleteMFA exchanges a pending token plus a valid one-time code for a
// full session. Any defect in the exchange reads as invalid credentials.
func (s *Service) CompleteMFA(
	ctx context.Context,
	req MFACompleteRequest,
	origin string,
) (*LoginResult, error) {
	origin = normalizeOrigin(origin)

	pending := s.issuer.VerifyMFAPending(req.MFAToken)
	if pending == nil {
		return nil, fmt.Errorf("mfa pending token: %w", core.ErrTokenInvalid)
	}

	admin, err := s.principals.FindAdminByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}

	secret := ""
	if admin.MFASecret != nil {
		secret = *admin.MFASecret
	}

	if !s.mfa.Verify(secret, req.Code) {
		if terr := s.throttle.CheckAndRecord(ctx, admin.Email, origin, false); terr != nil {
			if errors.Is(terr, core.ErrTooManyAttempts) {
				return nil, terr
			}
			return nil, fmt.Errorf("record attempt: %w", terr)
		}
		return nil, ErrInvalidCredentials
	}

	return s.adminSession(ctx, admin, origin)
}

// Refresh rotates a refresh token: the presented token is verified,
// checked against the revocation set, exchanged for a fresh pair, and
// then revoked for its remaining lifetime so it cannot be replayed.
func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
) (*TokenPair, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("refresh jti %s: %w", claims.JTI, core.ErrTokenRevoked)
	}

	resolved, err := s.principals.ResolveByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh subject: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	access, err := s.issuer.IssueAccess(resolved.ID, resolved.Email, resolved.Roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	newRefresh, jti, err := s.issuer.IssueRefresh(resolved.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.blacklist.Revoke(ctx, claims.JTI, RemainingTTL(claims)); err != nil {
		slog.Warn("revoke rotated refresh token failed",
			"jti", claims.JTI,
			"error", err,
		)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		RefreshJTI:   jti,
	}, nil
}

// Logout revokes whatever tokens the caller still holds. Unparseable
// tokens are ignored: logout always succeeds from the client's view.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	if claims := s.issuer.VerifyAccess(accessToken); claims != nil {
		if err := s.blacklist.Revoke(ctx, claims.JTI, s.issuer.AccessTTL()); err != nil {
			slog.Warn("revoke access token failed", "error", err)
		}
	}

	if refreshToken == "" {
		return
	}
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}
	if err := s.blacklist.Revoke(ctx, claims.JTI, RemainingTTL(claims)); err != nil {
		slog.Warn("revoke refresh token failed", "error", err)
	}
}

// Me resolves the token subject back to its row so the response reflects
// current roles, not the ones frozen into the access token.
func (s *Service) Me(ctx context.Context, userID string) (*MeResponse, error) {
	resolved, err := s.principals.ResolveByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	return &MeResponse{
		ID:       resolved.ID,
		Email:    resolved.Email,
		Roles:    resolved.Roles,
		UserType: string(resolved.Kind),
	}, nil
}

// verifyAndAccount is the single password gate every variant goes
// through: timing-safe verification, attempt accounting on both
// outcomes, and an opportunistic hash upgrade after success.
func (s *Service) verifyAndAccount(
	ctx context.Context,
	kind principal.Kind,
	id, identifier string,
	hash *string,
	password, origin string,
) error {
	check := core.VerifyPasswordTimingSafe(password, hash)

	if err := s.throttle.CheckAndRecord(ctx, identifier, origin, check.Valid); err != nil {
		if errors.Is(err, core.ErrTooManyAttempts) {
			return err
		}
		return fmt.Errorf("record attempt: %w", err)
	}

	if !check.Valid {
		return ErrInvalidCredentials
	}

	if check.NeedsRehash {
		newHash, err := core.HashPassword(password)
		if err == nil {
			//nolint:errcheck // best-effort rehash upgrade
			_ = s.principals.UpdatePasswordHash(ctx, kind, id, newHash)
		}
	}

	return nil
}

// staffSession guards the invariant that staff tokens always carry an
// email claim. An empty column is an operator problem, not a caller one,
// so it logs loudly and reads as unauthorized outside.
func (s *Service) staffSession(
	id, email string,
	roles []string,
) (*LoginResult, error) {
	if email == "" {
		slog.Error("principal row missing email", "id", id)
		return nil, errMissingEmail
	}
	return s.issueSession(id, email, roles)
}

func (s *Service) issueSession(
	id, email string,
	roles []string,
) (*LoginResult, error) {
	access, err := s.issuer.IssueAccess(id, email, roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, _, err := s.issuer.IssueRefresh(id)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		refreshToken: refresh,
	}, nil
}

func normalizeOrigin(origin string) string {
	if strings.TrimSpace(origin) == "" {
		return "unknown"
	}
	return origin
}
