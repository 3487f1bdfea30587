package analysis

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/slide"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

type Handler struct {
	orch   *Orchestrator
	slides slide.Store
	logger *zap.SugaredLogger
}

func NewHandler(orch *Orchestrator, slides slide.Store, logger *zap.SugaredLogger) *Handler {
	return &Handler{orch: orch, slides: slides, logger: logger}
}

// Create reads the multipart "image" field and runs an analysis on it.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		h.logger.Debugw("invalid analysis upload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "multipart field \"image\" required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "read upload failed")
		return
	}

	ct := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}

	rec, err := h.orch.Analyze(r.Context(), p.Session, data, ct)
	switch {
	case err == nil:
		utilities.WriteJSON(w, http.StatusCreated, rec)
	case errors.Is(err, ErrUnsupportedImage):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAnalysisFailed):
		utilities.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Warnw("analysis failed", "err", err)
		utilities.WriteError(w, account.StatusFor(err), "analysis could not be stored")
	}
}

// Slide serves an image kept by a non-inline slide store.
func (h *Handler) Slide(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	key := r.PathValue("key")
	if !slide.Owns(p.Session.Email, key) {
		utilities.WriteError(w, http.StatusNotFound, "slide not found")
		return
	}
	data, ct, err := h.slides.Get(r.Context(), key)
	switch {
	case errors.Is(err, slide.ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, "slide not found")
		return
	case errors.Is(err, slide.ErrInvalidKey):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Warnw("slide read failed", "err", err)
		utilities.WriteError(w, http.StatusServiceUnavailable, "slide unavailable")
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}
