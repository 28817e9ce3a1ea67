// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy() Checker {
	return CheckerFunc(func(context.Context) error { return nil })
}

func broken() Checker {
	return CheckerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})
}

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestReadiness(t *testing.T) {
	t.Run("all dependencies healthy", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: healthy()},
			Dependency{Name: "redis", Checker: healthy()},
		)

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		require.Len(t, body.Checks, 2)
		assert.True(t, body.Checks[0].Healthy)
	})

	t.Run("required dependency down degrades", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: broken()},
			Dependency{Name: "redis", Checker: healthy()},
		)

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "degraded", body.Status)
	})

	t.Run("optional dependency down stays ready", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: healthy()},
			Dependency{Name: "nats", Checker: broken(), Optional: true},
		)

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		require.Len(t, body.Checks, 2)
		assert.False(t, body.Checks[1].Healthy,
			"unhealthy optional dep still shows in the report")
	})

	t.Run("not ready flag short-circuits checks", func(t *testing.T) {
		h := NewHandler(Dependency{Name: "database", Checker: healthy()})
		h.SetReady(false)

		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestLivenessDuringShutdown(t *testing.T) {
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.SetShutdown(true)

	rec = httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
