// AngelaMos | 2026
// stubs_test.go

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/principal"
)

type memAttemptRepo struct {
	mu   sync.Mutex
	rows []LoginAttempt
}

func (r *memAttemptRepo) Record(_ context.Context, attempt *LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	r.rows = append(r.rows, *attempt)
	return nil
}

func (r *memAttemptRepo) CountFailedSince(
	_ context.Context,
	identifier string,
	since time.Time,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, row := range r.rows {
		if row.Identifier == identifier && !row.Success &&
			!row.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memAttemptRepo) DeleteForIdentifier(
	_ context.Context,
	identifier string,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	var deleted int64
	for _, row := range r.rows {
		if row.Identifier == identifier {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return deleted, nil
}

func (r *memAttemptRepo) DeleteOlderThan(
	_ context.Context,
	cutoff time.Time,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	var deleted int64
	for _, row := range r.rows {
		if row.AttemptedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return deleted, nil
}

func (r *memAttemptRepo) Stats(
	_ context.Context,
	windowStart time.Time,
) (*AttemptStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &AttemptStats{Total: int64(len(r.rows))}
	for _, row := range r.rows {
		if !row.Success && !row.AttemptedAt.Before(windowStart) {
			stats.FailedRecent++
		}
	}
	return stats, nil
}

func (r *memAttemptRepo) seedFailures(identifier string, n int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < n; i++ {
		r.rows = append(r.rows, LoginAttempt{
			Identifier:  identifier,
			IPAddress:   "test",
			Success:     false,
			AttemptedAt: at,
		})
	}
}

func (r *memAttemptRepo) count(identifier string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, row := range r.rows {
		if row.Identifier == identifier {
			count++
		}
	}
	return count
}

type fakePrincipalRepo struct {
	tutores     map[string]*principal.Tutor
	docentes    map[string]*principal.Docente
	admins      map[string]*principal.Admin
	estudiantes map[string]*principal.EstudianteWithRelations
	logros      map[string]int
	resolved    map[string]*principal.Resolved

	updatedHashes map[string]string
}

func newFakePrincipalRepo() *fakePrincipalRepo {
	return &fakePrincipalRepo{
		tutores:       map[string]*principal.Tutor{},
		docentes:      map[string]*principal.Docente{},
		admins:        map[string]*principal.Admin{},
		estudiantes:   map[string]*principal.EstudianteWithRelations{},
		logros:        map[string]int{},
		resolved:      map[string]*principal.Resolved{},
		updatedHashes: map[string]string{},
	}
}

func (r *fakePrincipalRepo) FindTutorByEmail(
	_ context.Context,
	email string,
) (*principal.Tutor, error) {
	if t, ok := r.tutores[email]; ok {
		return t, nil
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) FindDocenteByEmail(
	_ context.Context,
	email string,
) (*principal.Docente, error) {
	if d, ok := r.docentes[email]; ok {
		return d, nil
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) FindAdminByEmail(
	_ context.Context,
	email string,
) (*principal.Admin, error) {
	if a, ok := r.admins[email]; ok {
		return a, nil
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) FindEstudianteByUsername(
	_ context.Context,
	username string,
) (*principal.EstudianteWithRelations, error) {
	if e, ok := r.estudiantes[username]; ok {
		return e, nil
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) FindAdminByID(
	_ context.Context,
	id string,
) (*principal.Admin, error) {
	for _, a := range r.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) ResolveByID(
	_ context.Context,
	id string,
) (*principal.Resolved, error) {
	if res, ok := r.resolved[id]; ok {
		return res, nil
	}
	return nil, core.ErrNotFound
}

func (r *fakePrincipalRepo) UpdatePasswordHash(
	_ context.Context,
	kind principal.Kind,
	id, hash string,
) error {
	r.updatedHashes[string(kind)+"/"+id] = hash
	return nil
}

func (r *fakePrincipalRepo) CountLogros(
	_ context.Context,
	estudianteID string,
) (int, error) {
	return r.logros[estudianteID], nil
}

func (r *fakePrincipalRepo) FindEstudianteTutorID(
	_ context.Context,
	estudianteID string,
) (string, error) {
	if e, ok := r.estudiantes[estudianteID]; ok && e.TutorID != nil {
		return *e.TutorID, nil
	}
	return "", core.ErrNotFound
}

type memBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: map[string]time.Duration{}}
}

func (b *memBlacklist) Revoke(
	_ context.Context,
	jti string,
	ttl time.Duration,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if jti == "" || ttl <= 0 {
		return nil
	}
	b.revoked[jti] = ttl
	return nil
}

func (b *memBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.revoked[jti]
	return ok, nil
}

type capturedEvent struct {
	Name    string
	Payload any
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) Emit(name string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, capturedEvent{Name: name, Payload: payload})
}

func (s *captureSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Name)
	}
	return names
}
