package history

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

type Handler struct {
	mgr    *Manager
	logger *zap.SugaredLogger
}

func NewHandler(mgr *Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	records, err := h.mgr.List(r.Context(), p.Session.Email)
	if err != nil {
		h.fail(w, "list history failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	rec, err := h.mgr.Get(r.Context(), p.Session.Email, r.PathValue("id"))
	if err != nil {
		h.fail(w, "get history record failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	if err := h.mgr.Clear(r.Context(), p.Session.Email); err != nil {
		h.fail(w, "clear history failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, ErrNotFound) {
		utilities.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Warnw(msg, "err", err)
	utilities.WriteError(w, account.StatusFor(err), msg)
}
