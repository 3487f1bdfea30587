package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

// Handler exposes the edit session and the transcript export. It keeps one
// EditSession per account.
type Handler struct {
	history  *history.Manager
	clock    clockwork.Clock
	savedFor time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*EditSession
}

func NewHandler(h *history.Manager, clock clockwork.Clock, savedFor time.Duration, logger *zap.SugaredLogger) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if savedFor <= 0 {
		savedFor = DefaultSavedWindow
	}
	return &Handler{history: h, clock: clock, savedFor: savedFor, logger: logger, sessions: make(map[string]*EditSession)}
}

func (h *Handler) session(email string) *EditSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[email]
	if !ok {
		s = NewEditSession(email, h.history, WithClock(h.clock), WithSavedWindow(h.savedFor), WithLogger(h.logger))
		h.sessions[email] = s
	}
	return s
}

// Transcript returns the plain-text export of one record.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	rec, err := h.history.Get(r.Context(), p.Session.Email, r.PathValue("id"))
	if err != nil {
		h.fail(w, "transcript failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Transcript(p.Profile, rec)))
}

// Open loads the record into the caller's edit session and starts editing.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	rec, err := h.history.Get(r.Context(), p.Session.Email, r.PathValue("id"))
	if err != nil {
		h.fail(w, "open edit failed", err)
		return
	}
	s := h.session(p.Session.Email)
	s.Load(rec)
	if err := s.BeginEdit(); err != nil {
		h.fail(w, "open edit failed", err)
		return
	}
	h.writeSnapshot(w, s)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	h.writeSnapshot(w, h.session(p.Session.Email))
}

// EditRequest is one draft mutation. Field is overallImpression,
// differentialDiagnosis, finding or recommendation; Index and Subfield
// address list entries.
type EditRequest struct {
	Field    string `json:"field"`
	Index    int    `json:"index"`
	Subfield string `json:"subfield"`
	Value    string `json:"value"`
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s := h.session(p.Session.Email)
	var err error
	switch req.Field {
	case "finding":
		err = s.SetFinding(req.Index, FindingField(req.Subfield), req.Value)
	case "recommendation":
		err = s.SetRecommendation(req.Index, req.Value)
	default:
		err = s.SetField(Field(req.Field), req.Value)
	}
	if err != nil {
		h.fail(w, "edit failed", err)
		return
	}
	h.writeSnapshot(w, s)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	s := h.session(p.Session.Email)
	if err := s.Commit(r.Context()); err != nil {
		h.fail(w, "commit failed", err)
		return
	}
	h.writeSnapshot(w, s)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := account.PrincipalFrom(r.Context())
	s := h.session(p.Session.Email)
	if err := s.Cancel(); err != nil {
		h.fail(w, "cancel failed", err)
		return
	}
	h.writeSnapshot(w, s)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, s *EditSession) {
	snap, err := s.Snapshot()
	if err != nil {
		h.fail(w, "no report loaded", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	var status int
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, ErrNothingLoaded):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotEditing), errors.Is(err, ErrInvalidEdit):
		status = http.StatusBadRequest
	case errors.Is(err, ErrCommitPending), errors.Is(err, ErrAbandoned):
		status = http.StatusConflict
	default:
		status = account.StatusFor(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warnw(msg, "err", err)
		utilities.WriteError(w, status, msg)
		return
	}
	utilities.WriteError(w, status, err.Error())
}
