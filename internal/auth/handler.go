// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/middleware"
)

type Handler struct {
	service   *Service
	cookies   *CookieWriter
	validator *validator.Validate
}

func NewHandler(service *Service, cookies *CookieWriter) *Handler {
	return &Handler{
		service:   service,
		cookies:   cookies,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/login/estudiante", h.LoginEstudiante)
		r.Post("/mfa/complete", h.CompleteMFA)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	result, err := h.service.Login(r.Context(), req, extractIPAddress(r))
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.finishLogin(w, result)
}

func (h *Handler) LoginEstudiante(w http.ResponseWriter, r *http.Request) {
	var req EstudianteLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	result, err := h.service.LoginEstudiante(r.Context(), req, extractIPAddress(r))
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.finishLogin(w, result)
}

func (h *Handler) CompleteMFA(w http.ResponseWriter, r *http.Request) {
	var req MFACompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	result, err := h.service.CompleteMFA(r.Context(), req, extractIPAddress(r))
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			core.JSONError(w, core.TokenInvalidError())
			return
		}
		h.writeLoginError(w, err)
		return
	}

	h.finishLogin(w, result)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		core.JSONError(w, core.TokenInvalidError())
		return
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		// A stale pair in the cookie jar must not wedge the client: any
		// rejection clears both cookies so the next attempt starts clean.
		h.cookies.Clear(w)

		if errors.Is(err, core.ErrTokenExpired) {
			core.JSONError(w, core.TokenExpiredError())
			return
		}
		if errors.Is(err, core.ErrTokenRevoked) {
			core.JSONError(w, core.TokenRevokedError())
			return
		}
		if errors.Is(err, core.ErrTokenInvalid) {
			core.JSONError(w, core.TokenInvalidError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	h.cookies.SetAccess(w, pair.AccessToken, h.service.issuer.AccessTTL())
	h.cookies.SetRefresh(w, pair.RefreshToken, h.service.issuer.RefreshTTL())

	core.OK(w, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), accessTokenFrom(r), refreshTokenFrom(r))
	h.cookies.Clear(w)
	core.NoContent(w)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.Unauthorized(w, "")
		return
	}

	me, err := h.service.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, me)
}

// finishLogin moves the tokens into cookies and writes the result body.
// MFA-pending results carry no tokens, so they skip the cookie step.
func (h *Handler) finishLogin(w http.ResponseWriter, result *LoginResult) {
	if result.Succeeded() {
		h.cookies.SetAccess(w, result.AccessToken, h.service.issuer.AccessTTL())
		h.cookies.SetRefresh(w, result.RefreshToken(), h.service.issuer.RefreshTTL())
	}

	core.OK(w, result)
}

// writeLoginError collapses every login failure into one of two shapes:
// a throttle response with a retry hint, or a generic unauthorized that
// leaks nothing about which step failed.
func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrTooManyAttempts) {
		retry := int(h.service.throttle.RetryAfter().Seconds())
		core.JSONError(w, core.TooManyAttemptsError(retry))
		return
	}

	if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, errMissingEmail) {
		core.JSONError(w, core.UnauthorizedError("invalid credentials"))
		return
	}

	core.InternalServerError(w, err)
}

func accessTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	return ""
}

func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.RefreshToken
	}

	return ""
}

func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[len(ips)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
