// AngelaMos | 2026
// entity.go

package principal

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind discriminates the four principal variants. The string values double
// as wire-level userType identifiers and as the table routing key in the
// repository.
type Kind string

const (
	KindTutor      Kind = "tutor"
	KindDocente    Kind = "docente"
	KindAdmin      Kind = "admin"
	KindEstudiante Kind = "estudiante"
)

const (
	RoleEstudiante = "ESTUDIANTE"
	RoleTutor      = "TUTOR"
	RoleDocente    = "DOCENTE"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// DefaultRole is the baseline role granted when the stored role list of a
// variant is empty or unreadable.
func (k Kind) DefaultRole() string {
	switch k {
	case KindTutor:
		return RoleTutor
	case KindDocente:
		return RoleDocente
	case KindAdmin:
		return RoleAdmin
	case KindEstudiante:
		return RoleEstudiante
	}
	return RoleEstudiante
}

type Tutor struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	PasswordHash       *string    `db:"password_hash"`
	Nombre             string     `db:"nombre"`
	Apellido           string     `db:"apellido"`
	DNI                *string    `db:"dni"`
	Telefono           *string    `db:"telefono"`
	Roles              *string    `db:"roles"`
	MustChangePassword bool       `db:"must_change_password"`
	OnboardingComplete bool       `db:"ha_completado_onboarding"`
	FechaRegistro      time.Time  `db:"fecha_registro"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

type Docente struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	PasswordHash       *string    `db:"password_hash"`
	Nombre             string     `db:"nombre"`
	Apellido           string     `db:"apellido"`
	Titulo             *string    `db:"titulo"`
	Bio                *string    `db:"bio"`
	Roles              *string    `db:"roles"`
	MustChangePassword bool       `db:"must_change_password"`
	FechaRegistro      time.Time  `db:"fecha_registro"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

type Admin struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	PasswordHash       *string    `db:"password_hash"`
	Nombre             string     `db:"nombre"`
	Apellido           string     `db:"apellido"`
	Roles              *string    `db:"roles"`
	MustChangePassword bool       `db:"must_change_password"`
	MFAEnabled         bool       `db:"mfa_enabled"`
	MFASecret          *string    `db:"mfa_secret"`
	FechaRegistro      time.Time  `db:"fecha_registro"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

type Estudiante struct {
	ID                 string     `db:"id"`
	Username           string     `db:"username"`
	Email              *string    `db:"email"`
	PasswordHash       *string    `db:"password_hash"`
	Nombre             string     `db:"nombre"`
	Apellido           string     `db:"apellido"`
	Edad               *int       `db:"edad"`
	NivelEscolar       *string    `db:"nivel_escolar"`
	FotoURL            *string    `db:"foto_url"`
	AvatarURL          *string    `db:"avatar_url"`
	AnimacionIdleURL   *string    `db:"animacion_idle_url"`
	XPTotal            int        `db:"xp_total"`
	NivelActual        int        `db:"nivel_actual"`
	Roles              *string    `db:"roles"`
	MustChangePassword bool       `db:"must_change_password"`
	TutorID            *string    `db:"tutor_id"`
	CasaID             *string    `db:"casa_id"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

// TutorRef and CasaRef are the slim projections joined onto an Estudiante
// row for the login profile.
type TutorRef struct {
	ID       string  `db:"tutor_ref_id"       json:"id"`
	Nombre   string  `db:"tutor_ref_nombre"   json:"nombre"`
	Apellido string  `db:"tutor_ref_apellido" json:"apellido"`
	Email    *string `db:"tutor_ref_email"    json:"email"`
}

type CasaRef struct {
	ID             string  `db:"casa_ref_id"              json:"id"`
	Nombre         string  `db:"casa_ref_nombre"          json:"nombre"`
	ColorPrimary   *string `db:"casa_ref_color_primary"   json:"colorPrimary"`
	ColorSecondary *string `db:"casa_ref_color_secondary" json:"colorSecondary"`
}

type EstudianteWithRelations struct {
	Estudiante
	Tutor *TutorRef
	Casa  *CasaRef
}

// ParseRoles normalizes the serialized role column. The column has held a
// JSON array, a bare string, and NULL at different points in the schema's
// life; all of them must read back as a non-empty list.
func ParseRoles(raw *string, fallback string) []string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return []string{fallback}
	}

	trimmed := strings.TrimSpace(*raw)

	if strings.HasPrefix(trimmed, "[") {
		var parsed []string
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			roles := make([]string, 0, len(parsed))
			for _, r := range parsed {
				if r = strings.TrimSpace(r); r != "" {
					roles = append(roles, strings.ToUpper(r))
				}
			}
			if len(roles) > 0 {
				return roles
			}
		}
		return []string{fallback}
	}

	return []string{strings.ToUpper(trimmed)}
}
