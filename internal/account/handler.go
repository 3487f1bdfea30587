package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	Profile entity.Profile
	Session entity.Session
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Handler exposes HTTP endpoints for signup, login and the profile.
type Handler struct {
	dir    *Directory
	logger *zap.SugaredLogger
}

func NewHandler(dir *Directory, logger *zap.SugaredLogger) *Handler {
	return &Handler{dir: dir, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	ProfileFields
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the profile and the bearer token of the new session.
type AuthResponse struct {
	Profile   entity.Profile `json:"profile"`
	Token     string         `json:"token"`
	SessionID string         `json:"sessionId"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	profile, sess, err := h.dir.Create(r.Context(), req.ProfileFields, req.Email, req.Password)
	if err != nil {
		h.fail(w, "signup failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, AuthResponse{Profile: profile, Token: sess.Token, SessionID: sess.ID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	profile, sess, err := h.dir.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, AuthResponse{Profile: profile, Token: sess.Token, SessionID: sess.ID})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.EndSession(r.Context()); err != nil {
		h.fail(w, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	utilities.WriteJSON(w, http.StatusOK, p.Profile)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req ProfileFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	profile, err := h.dir.Update(r.Context(), p.Session, req)
	if err != nil {
		h.fail(w, "update failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, profile)
}

// RequireSession resolves the bearer token and attaches the Principal to the
// request context; requests without a live session get 401.
func (h *Handler) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, sess, err := h.dir.Resolve(r.Context(), utilities.BearerToken(r))
		if err != nil {
			h.fail(w, "unauthorized", err)
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), Principal{Profile: profile, Session: sess})))
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warnw(msg, "err", err)
		utilities.WriteError(w, status, msg)
		return
	}
	h.logger.Debugw(msg, "err", err)
	utilities.WriteError(w, status, err.Error())
}

// StatusFor maps account and storage errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, recordstore.ErrStorageUnavailable), errors.Is(err, recordstore.ErrCorrupt):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
