// AngelaMos | 2026
// dto.go

package auth

import (
	"github.com/aulamagica/backend/internal/principal"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

type EstudianteLoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type MFACompleteRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code"      validate:"required,len=6,numeric"`
}

// LoginResult is the tagged union every login path produces: either a
// plain success (access token + profile) or an MFA-pending handshake.
// Succeeded is the one predicate used wherever the distinction matters.
type LoginResult struct {
	AccessToken string `json:"access_token,omitempty"`
	User        any    `json:"user,omitempty"`
	RequiresMFA bool   `json:"requires_mfa,omitempty"`
	MFAToken    string `json:"mfa_token,omitempty"`
	Message     string `json:"message,omitempty"`

	refreshToken string
}

func (r *LoginResult) Succeeded() bool {
	return !r.RequiresMFA
}

// RefreshToken exposes the paired refresh token to the HTTP layer, which
// moves it into the cookie; it is never serialized into the body.
func (r *LoginResult) RefreshToken() string {
	return r.refreshToken
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	RefreshJTI   string `json:"-"`
}

type TutorProfile struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	Nombre             string   `json:"nombre"`
	Apellido           string   `json:"apellido"`
	DNI                *string  `json:"dni"`
	Telefono           *string  `json:"telefono"`
	OnboardingComplete bool     `json:"ha_completado_onboarding"`
	Role               string   `json:"role"`
	Roles              []string `json:"roles"`
	MustChangePassword bool     `json:"must_change_password"`
}

type DocenteProfile struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	Nombre             string   `json:"nombre"`
	Apellido           string   `json:"apellido"`
	Titulo             *string  `json:"titulo"`
	Bio                *string  `json:"bio"`
	Role               string   `json:"role"`
	Roles              []string `json:"roles"`
	MustChangePassword bool     `json:"must_change_password"`
}

type AdminProfile struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	Nombre             string   `json:"nombre"`
	Apellido           string   `json:"apellido"`
	Role               string   `json:"role"`
	Roles              []string `json:"roles"`
	MustChangePassword bool     `json:"must_change_password"`
}

type EstudianteProfile struct {
	ID                 string              `json:"id"`
	Username           string              `json:"username"`
	Email              *string             `json:"email"`
	Nombre             string              `json:"nombre"`
	Apellido           string              `json:"apellido"`
	Edad               *int                `json:"edad"`
	NivelEscolar       *string             `json:"nivelEscolar"`
	FotoURL            *string             `json:"fotoUrl"`
	AvatarURL          *string             `json:"avatarUrl"`
	AnimacionIdleURL   *string             `json:"animacion_idle_url"`
	XPTotal            int                 `json:"xp_total"`
	NivelActual        int                 `json:"nivel_actual"`
	Casa               *principal.CasaRef  `json:"casa"`
	Tutor              *principal.TutorRef `json:"tutor"`
	Role               string              `json:"role"`
	Roles              []string            `json:"roles"`
	MustChangePassword bool                `json:"must_change_password"`
}

type MeResponse struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	UserType string   `json:"userType"`
}

func toTutorProfile(t *principal.Tutor, roles []string) TutorProfile {
	return TutorProfile{
		ID:                 t.ID,
		Email:              t.Email,
		Nombre:             t.Nombre,
		Apellido:           t.Apellido,
		DNI:                t.DNI,
		Telefono:           t.Telefono,
		OnboardingComplete: t.OnboardingComplete,
		Role:               roles[0],
		Roles:              roles,
		MustChangePassword: t.MustChangePassword,
	}
}

func toDocenteProfile(d *principal.Docente, roles []string) DocenteProfile {
	return DocenteProfile{
		ID:                 d.ID,
		Email:              d.Email,
		Nombre:             d.Nombre,
		Apellido:           d.Apellido,
		Titulo:             d.Titulo,
		Bio:                d.Bio,
		Role:               roles[0],
		Roles:              roles,
		MustChangePassword: d.MustChangePassword,
	}
}

func toAdminProfile(a *principal.Admin, roles []string) AdminProfile {
	return AdminProfile{
		ID:                 a.ID,
		Email:              a.Email,
		Nombre:             a.Nombre,
		Apellido:           a.Apellido,
		Role:               roles[0],
		Roles:              roles,
		MustChangePassword: a.MustChangePassword,
	}
}

func toEstudianteProfile(
	e *principal.EstudianteWithRelations,
	roles []string,
) EstudianteProfile {
	return EstudianteProfile{
		ID:                 e.ID,
		Username:           e.Username,
		Email:              e.Email,
		Nombre:             e.Nombre,
		Apellido:           e.Apellido,
		Edad:               e.Edad,
		NivelEscolar:       e.NivelEscolar,
		FotoURL:            e.FotoURL,
		AvatarURL:          e.AvatarURL,
		AnimacionIdleURL:   e.AnimacionIdleURL,
		XPTotal:            e.XPTotal,
		NivelActual:        e.NivelActual,
		Casa:               e.Casa,
		Tutor:              e.Tutor,
		Role:               roles[0],
		Roles:              roles,
		MustChangePassword: e.MustChangePassword,
	}
}
