// AngelaMos | 2026
// repository.go

package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aulamagica/backend/internal/core"
)

// Repository is the credential store adapter. Principal rows are owned by
// the provisioning flows; auth reads them and writes back only password
// hash upgrades.
type Repository interface {
	FindTutorByEmail(ctx context.Context, email string) (*Tutor, error)
	FindDocenteByEmail(ctx context.Context, email string) (*Docente, error)
	FindAdminByEmail(ctx context.Context, email string) (*Admin, error)
	FindEstudianteByUsername(
		ctx context.Context,
		username string,
	) (*EstudianteWithRelations, error)
	FindAdminByID(ctx context.Context, id string) (*Admin, error)
	ResolveByID(ctx context.Context, id string) (*Resolved, error)
	UpdatePasswordHash(ctx context.Context, kind Kind, id, hash string) error
	CountLogros(ctx context.Context, estudianteID string) (int, error)
	FindEstudianteTutorID(
		ctx context.Context,
		estudianteID string,
	) (string, error)
}

// Resolved is the cross-table projection used when only a subject id is
// known (token refresh re-derives authorization from it).
type Resolved struct {
	ID    string
	Email string
	Roles []string
	Kind  Kind
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) FindTutorByEmail(
	ctx context.Context,
	email string,
) (*Tutor, error) {
	query := `
		SELECT id, email, password_hash, nombre, apellido, dni, telefono,
		       roles, must_change_password, ha_completado_onboarding,
		       fecha_registro, deleted_at
		FROM tutores
		WHERE email = $1 AND deleted_at IS NULL`

	var tutor Tutor
	err := r.db.GetContext(ctx, &tutor, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find tutor by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find tutor by email: %w", err)
	}

	return &tutor, nil
}

func (r *repository) FindDocenteByEmail(
	ctx context.Context,
	email string,
) (*Docente, error) {
	query := `
		SELECT id, email, password_hash, nombre, apellido, titulo, bio,
		       roles, must_change_password, fecha_registro, deleted_at
		FROM docentes
		WHERE email = $1 AND deleted_at IS NULL`

	var docente Docente
	err := r.db.GetContext(ctx, &docente, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find docente by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find docente by email: %w", err)
	}

	return &docente, nil
}

func (r *repository) FindAdminByEmail(
	ctx context.Context,
	email string,
) (*Admin, error) {
	query := `
		SELECT id, email, password_hash, nombre, apellido, roles,
		       must_change_password, mfa_enabled, mfa_secret,
		       fecha_registro, deleted_at
		FROM admins
		WHERE email = $1 AND deleted_at IS NULL`

	var admin Admin
	err := r.db.GetContext(ctx, &admin, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find admin by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find admin by email: %w", err)
	}

	return &admin, nil
}

func (r *repository) FindAdminByID(
	ctx context.Context,
	id string,
) (*Admin, error) {
	query := `
		SELECT id, email, password_hash, nombre, apellido, roles,
		       must_change_password, mfa_enabled, mfa_secret,
		       fecha_registro, deleted_at
		FROM admins
		WHERE id = $1 AND deleted_at IS NULL`

	var admin Admin
	err := r.db.GetContext(ctx, &admin, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find admin by id: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find admin by id: %w", err)
	}

	return &admin, nil
}

type estudianteJoinRow struct {
	Estudiante
	TutorRefID       *string `db:"tutor_ref_id"`
	TutorRefNombre   *string `db:"tutor_ref_nombre"`
	TutorRefApellido *string `db:"tutor_ref_apellido"`
	TutorRefEmail    *string `db:"tutor_ref_email"`
	CasaRefID        *string `db:"casa_ref_id"`
	CasaRefNombre    *string `db:"casa_ref_nombre"`
	CasaRefPrimary   *string `db:"casa_ref_color_primary"`
	CasaRefSecondary *string `db:"casa_ref_color_secondary"`
}

func (r *repository) FindEstudianteByUsername(
	ctx context.Context,
	username string,
) (*EstudianteWithRelations, error) {
	query := `
		SELECT e.id, e.username, e.email, e.password_hash, e.nombre,
		       e.apellido, e.edad, e.nivel_escolar, e.foto_url, e.avatar_url,
		       e.animacion_idle_url, e.xp_total, e.nivel_actual, e.roles,
		       e.must_change_password, e.tutor_id, e.casa_id, e.deleted_at,
		       t.id AS tutor_ref_id,
		       t.nombre AS tutor_ref_nombre,
		       t.apellido AS tutor_ref_apellido,
		       t.email AS tutor_ref_email,
		       c.id AS casa_ref_id,
		       c.nombre AS casa_ref_nombre,
		       c.color_primary AS casa_ref_color_primary,
		       c.color_secondary AS casa_ref_color_secondary
		FROM estudiantes e
		LEFT JOIN tutores t ON t.id = e.tutor_id
		LEFT JOIN casas c ON c.id = e.casa_id
		WHERE e.username = $1 AND e.deleted_at IS NULL`

	var row estudianteJoinRow
	err := r.db.GetContext(ctx, &row, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf(
			"find estudiante by username: %w",
			core.ErrNotFound,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("find estudiante by username: %w", err)
	}

	result := &EstudianteWithRelations{Estudiante: row.Estudiante}

	if row.TutorRefID != nil {
		result.Tutor = &TutorRef{
			ID:       *row.TutorRefID,
			Nombre:   derefString(row.TutorRefNombre),
			Apellido: derefString(row.TutorRefApellido),
			Email:    row.TutorRefEmail,
		}
	}

	if row.CasaRefID != nil {
		result.Casa = &CasaRef{
			ID:             *row.CasaRefID,
			Nombre:         derefString(row.CasaRefNombre),
			ColorPrimary:   row.CasaRefPrimary,
			ColorSecondary: row.CasaRefSecondary,
		}
	}

	return result, nil
}

type resolvedRow struct {
	ID    string  `db:"id"`
	Email *string `db:"email"`
	Roles *string `db:"roles"`
}

// ResolveByID probes all four tables in estudiante-first order. The id
// space is uuid so cross-table collisions do not occur in practice; the
// probe order only decides how fast the common case (students refreshing)
// resolves.
func (r *repository) ResolveByID(
	ctx context.Context,
	id string,
) (*Resolved, error) {
	probes := []struct {
		query string
		kind  Kind
	}{
		{
			query: `SELECT id, email, roles FROM estudiantes
				WHERE id = $1 AND deleted_at IS NULL`,
			kind: KindEstudiante,
		},
		{
			query: `SELECT id, email, roles FROM tutores
				WHERE id = $1 AND deleted_at IS NULL`,
			kind: KindTutor,
		},
		{
			query: `SELECT id, email, roles FROM docentes
				WHERE id = $1 AND deleted_at IS NULL`,
			kind: KindDocente,
		},
		{
			query: `SELECT id, email, roles FROM admins
				WHERE id = $1 AND deleted_at IS NULL`,
			kind: KindAdmin,
		},
	}

	for _, probe := range probes {
		var row resolvedRow
		err := r.db.GetContext(ctx, &row, probe.query, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve principal by id: %w", err)
		}

		return &Resolved{
			ID:    row.ID,
			Email: derefString(row.Email),
			Roles: ParseRoles(row.Roles, probe.kind.DefaultRole()),
			Kind:  probe.kind,
		}, nil
	}

	return nil, fmt.Errorf("resolve principal by id: %w", core.ErrNotFound)
}

var kindTables = map[Kind]string{
	KindTutor:      "tutores",
	KindDocente:    "docentes",
	KindAdmin:      "admins",
	KindEstudiante: "estudiantes",
}

// UpdatePasswordHash upgrades a stored hash in place. This is the only
// principal mutation auth performs.
func (r *repository) UpdatePasswordHash(
	ctx context.Context,
	kind Kind,
	id, hash string,
) error {
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("update password hash: unknown kind %q", kind)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, table)

	result, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("update password hash: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) CountLogros(
	ctx context.Context,
	estudianteID string,
) (int, error) {
	query := `SELECT COUNT(*) FROM estudiante_logros WHERE estudiante_id = $1`

	var count int
	if err := r.db.GetContext(ctx, &count, query, estudianteID); err != nil {
		return 0, fmt.Errorf("count logros: %w", err)
	}

	return count, nil
}

func (r *repository) FindEstudianteTutorID(
	ctx context.Context,
	estudianteID string,
) (string, error) {
	query := `
		SELECT tutor_id FROM estudiantes
		WHERE id = $1 AND deleted_at IS NULL`

	var tutorID *string
	err := r.db.GetContext(ctx, &tutorID, query, estudianteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find estudiante tutor: %w", core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find estudiante tutor: %w", err)
	}

	if tutorID == nil {
		return "", fmt.Errorf("find estudiante tutor: %w", core.ErrNotFound)
	}

	return *tutorID, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
