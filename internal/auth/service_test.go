// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

const testPassword = "Profesor1!"

var (
	testHashOnce sync.Once
	testHash     string
)

// strongHash amortizes the expensive production-cost hash across the
// whole package run.
func strongHash(t *testing.T) *string {
	t.Helper()
	testHashOnce.Do(func() {
		hash, err := core.HashPassword(testPassword)
		require.NoError(t, err)
		testHash = hash
	})
	h := testHash
	return &h
}

func weakHash(t *testing.T) *string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword(
		[]byte(testPassword),
		bcrypt.MinCost,
	)
	require.NoError(t, err)
	h := string(hash)
	return &h
}

type serviceFixture struct {
	svc      *Service
	repo     *fakePrincipalRepo
	attempts *memAttemptRepo
	revoked  *memBlacklist
	events   *captureSink
	issuer   *Issuer
}

func newServiceFixture(t *testing.T, mfa CodeVerifier) *serviceFixture {
	t.Helper()

	repo := newFakePrincipalRepo()
	attempts := &memAttemptRepo{}
	revoked := newMemBlacklist()
	events := &captureSink{}
	issuer := newTestIssuer(t)

	return &serviceFixture{
		svc: NewService(
			repo,
			NewThrottle(attempts),
			issuer,
			revoked,
			events,
			mfa,
		),
		repo:     repo,
		attempts: attempts,
		revoked:  revoked,
		events:   events,
		issuer:   issuer,
	}
}

func (f *serviceFixture) addTutor(t *testing.T, email string) *principal.Tutor {
	t.Helper()
	tutor := &principal.Tutor{
		ID:           "tutor-1",
		Email:        email,
		PasswordHash: strongHash(t),
		Nombre:       "Laura",
		Apellido:     "Gómez",
	}
	f.repo.tutores[email] = tutor
	f.repo.resolved[tutor.ID] = &principal.Resolved{
		ID:    tutor.ID,
		Email: email,
		Roles: []string{principal.RoleTutor},
		Kind:  principal.KindTutor,
	}
	return tutor
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "nadie@example.com",
		Password: "whatever",
	}, "1.2.3.4")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, f.attempts.count("nadie@example.com"))
}

func TestLoginTutorSuccess(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")
	f.attempts.seedFailures("tutor@example.com", 2, time.Now())

	result, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken())

	profile, ok := result.User.(TutorProfile)
	require.True(t, ok)
	assert.Equal(t, "tutor-1", profile.ID)
	assert.Equal(t, "TUTOR", profile.Role)

	claims := f.issuer.VerifyAccess(result.AccessToken)
	require.NotNil(t, claims)
	assert.Equal(t, "tutor-1", claims.UserID)
	assert.Equal(t, []string{"TUTOR"}, claims.Roles)

	assert.Equal(t, []string{EventUserLoggedIn}, f.events.names())

	// A success wipes the identifier's attempt history.
	assert.Zero(t, f.attempts.count("tutor@example.com"))
}

func TestLoginEmailIsNormalized(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")

	result, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "  TUTOR@Example.COM ",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestLoginProbeOrderFirstMatchWins(t *testing.T) {
	f := newServiceFixture(t, nil)

	// Same email in two tables: the tutor row must win, the docente row
	// must never be consulted.
	f.addTutor(t, "dup@example.com")
	f.repo.docentes["dup@example.com"] = &principal.Docente{
		ID:           "docente-1",
		Email:        "dup@example.com",
		PasswordHash: strongHash(t),
	}

	result, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "dup@example.com",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)

	_, isTutor := result.User.(TutorProfile)
	assert.True(t, isTutor)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: "wrong password",
	}, "1.2.3.4")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, f.attempts.count("tutor@example.com"))
	assert.Empty(t, f.events.names())
}

func TestLoginLockout(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")
	f.attempts.seedFailures("tutor@example.com", throttleMaxFailures-1, time.Now())

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: "wrong password",
	}, "1.2.3.4")

	assert.ErrorIs(t, err, core.ErrTooManyAttempts)
}

func TestLoginSuccessDuringLockoutResets(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")
	f.attempts.seedFailures("tutor@example.com", throttleMaxFailures+2, time.Now())

	result, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Zero(t, f.attempts.count("tutor@example.com"))
}

func TestLoginRehashUpgrade(t *testing.T) {
	f := newServiceFixture(t, nil)
	tutor := f.addTutor(t, "tutor@example.com")
	tutor.PasswordHash = weakHash(t)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)

	newHash, ok := f.repo.updatedHashes["tutor/tutor-1"]
	require.True(t, ok, "hash upgrade should be persisted")

	assert.Equal(t, core.BcryptRounds(), core.RoundsFromHash(newHash))
	assert.True(t, core.VerifyPassword(testPassword, newHash))
}

func TestLoginStaffRowWithoutEmail(t *testing.T) {
	f := newServiceFixture(t, nil)
	tutor := f.addTutor(t, "tutor@example.com")
	tutor.Email = ""

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "tutor@example.com",
		Password: testPassword,
	}, "1.2.3.4")

	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingEmail)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginAdminWithMFA(t *testing.T) {
	f := newServiceFixture(t, nil)
	secret := "JBSWY3DPEHPK3PXP"
	f.repo.admins["admin@example.com"] = &principal.Admin{
		ID:           "admin-1",
		Email:        "admin@example.com",
		PasswordHash: strongHash(t),
		MFAEnabled:   true,
		MFASecret:    &secret,
	}

	result, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "admin@example.com",
		Password: testPassword,
	}, "1.2.3.4")
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.True(t, result.RequiresMFA)
	assert.Empty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken())
	assert.NotEmpty(t, result.Message)

	pending := f.issuer.VerifyMFAPending(result.MFAToken)
	require.NotNil(t, pending)
	assert.Equal(t, "admin-1", pending.UserID)

	// No login event until the second factor clears.
	assert.Empty(t, f.events.names())
}

func TestCompleteMFA(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	verifier := CodeVerifierFunc(func(s, code string) bool {
		return s == secret && code == "123456"
	})

	newAdminFixture := func(t *testing.T) *serviceFixture {
		f := newServiceFixture(t, verifier)
		f.repo.admins["admin@example.com"] = &principal.Admin{
			ID:           "admin-1",
			Email:        "admin@example.com",
			PasswordHash: strongHash(t),
			MFAEnabled:   true,
			MFASecret:    &secret,
		}
		return f
	}

	t.Run("valid code completes the session", func(t *testing.T) {
		f := newAdminFixture(t)

		pending, err := f.issuer.IssueMFAPending("admin-1", "admin@example.com")
		require.NoError(t, err)

		result, err := f.svc.CompleteMFA(context.Background(), MFACompleteRequest{
			MFAToken: pending,
			Code:     "123456",
		}, "1.2.3.4")
		require.NoError(t, err)

		assert.True(t, result.Succeeded())
		assert.NotEmpty(t, result.AccessToken)

		_, isAdmin := result.User.(AdminProfile)
		assert.True(t, isAdmin)

		assert.Equal(t, []string{EventUserLoggedIn}, f.events.names())
	})

	t.Run("wrong code is an auth failure and counts", func(t *testing.T) {
		f := newAdminFixture(t)

		pending, err := f.issuer.IssueMFAPending("admin-1", "admin@example.com")
		require.NoError(t, err)

		_, err = f.svc.CompleteMFA(context.Background(), MFACompleteRequest{
			MFAToken: pending,
			Code:     "000000",
		}, "1.2.3.4")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, 1, f.attempts.count("admin@example.com"))
	})

	t.Run("garbage pending token", func(t *testing.T) {
		f := newAdminFixture(t)

		_, err := f.svc.CompleteMFA(context.Background(), MFACompleteRequest{
			MFAToken: "zzz",
			Code:     "123456",
		}, "1.2.3.4")

		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("access token cannot stand in for pending", func(t *testing.T) {
		f := newAdminFixture(t)

		access, err := f.issuer.IssueAccess("admin-1", "admin@example.com", nil)
		require.NoError(t, err)

		_, err = f.svc.CompleteMFA(context.Background(), MFACompleteRequest{
			MFAToken: access,
			Code:     "123456",
		}, "1.2.3.4")

		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})
}

func estudianteFixture(email *string) *principal.EstudianteWithRelations {
	return &principal.EstudianteWithRelations{
		Estudiante: principal.Estudiante{
			ID:          "est-1",
			Username:    "dragon_azul",
			Email:       email,
			Nombre:      "Mateo",
			Apellido:    "Ríos",
			XPTotal:     150,
			NivelActual: 2,
		},
		Casa: &principal.CasaRef{ID: "casa-1", Nombre: "Fénix"},
	}
}

func TestLoginEstudiante(t *testing.T) {
	t.Run("first login emits both student events", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		est := estudianteFixture(nil)
		est.PasswordHash = strongHash(t)
		f.repo.estudiantes["dragon_azul"] = est

		result, err := f.svc.LoginEstudiante(
			context.Background(),
			EstudianteLoginRequest{
				Username: "dragon_azul",
				Password: testPassword,
			},
			"1.2.3.4",
		)
		require.NoError(t, err)

		assert.True(t, result.Succeeded())
		assert.NotEmpty(t, result.AccessToken)

		profile, ok := result.User.(EstudianteProfile)
		require.True(t, ok)
		assert.Equal(t, "dragon_azul", profile.Username)
		assert.Equal(t, "ESTUDIANTE", profile.Role)
		require.NotNil(t, profile.Casa)
		assert.Equal(t, "Fénix", profile.Casa.Nombre)

		require.Equal(t, []string{
			EventEstudianteLoggedIn,
			EventEstudiantePrimerLogin,
		}, f.events.names())

		payload, ok := f.events.events[0].Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, payload["esPrimerLogin"])
	})

	t.Run("returning student skips the first-login event", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		est := estudianteFixture(nil)
		est.PasswordHash = strongHash(t)
		f.repo.estudiantes["dragon_azul"] = est
		f.repo.logros["est-1"] = 3

		_, err := f.svc.LoginEstudiante(
			context.Background(),
			EstudianteLoginRequest{
				Username: "dragon_azul",
				Password: testPassword,
			},
			"1.2.3.4",
		)
		require.NoError(t, err)

		require.Equal(t, []string{EventEstudianteLoggedIn}, f.events.names())

		payload, ok := f.events.events[0].Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, payload["esPrimerLogin"])
	})

	t.Run("missing student email does not block login", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		est := estudianteFixture(nil)
		est.PasswordHash = strongHash(t)
		f.repo.estudiantes["dragon_azul"] = est

		result, err := f.svc.LoginEstudiante(
			context.Background(),
			EstudianteLoginRequest{
				Username: "dragon_azul",
				Password: testPassword,
			},
			"1.2.3.4",
		)
		require.NoError(t, err)
		assert.True(t, result.Succeeded())
	})

	t.Run("unknown username", func(t *testing.T) {
		f := newServiceFixture(t, nil)

		_, err := f.svc.LoginEstudiante(
			context.Background(),
			EstudianteLoginRequest{
				Username: "nadie",
				Password: "whatever",
			},
			"1.2.3.4",
		)

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, 1, f.attempts.count("nadie"))
	})

	t.Run("student lockout keys on username", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		est := estudianteFixture(nil)
		est.PasswordHash = strongHash(t)
		f.repo.estudiantes["dragon_azul"] = est
		f.attempts.seedFailures("dragon_azul", throttleMaxFailures-1, time.Now())

		_, err := f.svc.LoginEstudiante(
			context.Background(),
			EstudianteLoginRequest{
				Username: "dragon_azul",
				Password: "wrong",
			},
			"1.2.3.4",
		)

		assert.ErrorIs(t, err, core.ErrTooManyAttempts)
	})
}

func TestRefreshRotation(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")

	refreshToken, oldJTI, err := f.issuer.IssueRefresh("tutor-1")
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, oldJTI, pair.RefreshJTI)

	// Roles come from the store, not from the old token.
	claims := f.issuer.VerifyAccess(pair.AccessToken)
	require.NotNil(t, claims)
	assert.Equal(t, []string{"TUTOR"}, claims.Roles)

	// The rotated-out token is burned.
	_, err = f.svc.Refresh(context.Background(), refreshToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestRefreshRejections(t *testing.T) {
	f := newServiceFixture(t, nil)

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.svc.Refresh(context.Background(), "zzz")
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("access token in the refresh slot", func(t *testing.T) {
		access, err := f.issuer.IssueAccess("u1", "e@example.com", nil)
		require.NoError(t, err)

		_, err = f.svc.Refresh(context.Background(), access)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("subject no longer exists", func(t *testing.T) {
		token, _, err := f.issuer.IssueRefresh("ghost")
		require.NoError(t, err)

		_, err = f.svc.Refresh(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t, nil)

	access, err := f.issuer.IssueAccess("u1", "e@example.com", nil)
	require.NoError(t, err)
	refresh, refreshJTI, err := f.issuer.IssueRefresh("u1")
	require.NoError(t, err)

	f.svc.Logout(context.Background(), access, refresh)

	revoked, err := f.revoked.IsRevoked(context.Background(), refreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	accessClaims := f.issuer.VerifyAccess(access)
	require.NotNil(t, accessClaims)
	revoked, err = f.revoked.IsRevoked(context.Background(), accessClaims.JTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Garbage tokens are ignored, never an error surface.
	f.svc.Logout(context.Background(), "zzz", "zzz")
}

func TestVerifyAccessTokenHonorsRevocation(t *testing.T) {
	f := newServiceFixture(t, nil)

	access, err := f.issuer.IssueAccess("u1", "e@example.com", nil)
	require.NoError(t, err)

	claims, err := f.svc.VerifyAccessToken(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	f.svc.Logout(context.Background(), access, "")

	_, err = f.svc.VerifyAccessToken(context.Background(), access)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestMe(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.addTutor(t, "tutor@example.com")

	me, err := f.svc.Me(context.Background(), "tutor-1")
	require.NoError(t, err)

	assert.Equal(t, "tutor-1", me.ID)
	assert.Equal(t, "tutor", me.UserType)
	assert.Equal(t, []string{"TUTOR"}, me.Roles)

	_, err = f.svc.Me(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
