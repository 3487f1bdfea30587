// Package report holds the edit lifecycle of a single analysis report and
// its plain-text export.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/metrics"
)

var (
	ErrNotEditing    = errors.New("report is not being edited")
	ErrInvalidEdit   = errors.New("invalid edit")
	ErrNothingLoaded = errors.New("no report loaded")
	ErrCommitPending = errors.New("commit already in progress")
	// ErrAbandoned is returned by a commit whose session was reloaded or
	// cancelled before the store answered.
	ErrAbandoned = errors.New("commit abandoned")
)

// DefaultSavedWindow is how long Saved reports true after a commit.
const DefaultSavedWindow = 3 * time.Second

type State int

const (
	Viewing State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "viewing"
}

type Field string

const (
	FieldOverallImpression     Field = "overallImpression"
	FieldDifferentialDiagnosis Field = "differentialDiagnosis"
)

type FindingField string

const (
	FindingLabel       FindingField = "finding"
	FindingDescription FindingField = "description"
)

// Replacer persists a new result for an existing record.
type Replacer interface {
	Replace(ctx context.Context, email, id string, result entity.AnalysisResult) ([]entity.Record, error)
}

// Snapshot is a read-only view of an EditSession.
type Snapshot struct {
	State     State                  `json:"-"`
	StateName string                 `json:"state"`
	Record    entity.Record          `json:"record"`
	Draft     *entity.AnalysisResult `json:"draft,omitempty"`
	Saved     bool                   `json:"saved"`
	Pending   bool                   `json:"pending"`
}

// EditSession is the Viewing/Editing state machine over one record of one
// account. It is safe for concurrent use.
type EditSession struct {
	mu       sync.Mutex
	email    string
	history  Replacer
	clock    clockwork.Clock
	savedFor time.Duration
	logger   *zap.SugaredLogger

	loaded  bool
	record  entity.Record
	state   State
	draft   entity.AnalysisResult
	savedAt time.Time

	// gen changes on every Load and Cancel; an in-flight commit whose gen
	// no longer matches is discarded.
	gen          uint64
	pending      bool
	cancelCommit context.CancelFunc
}

type Option func(*EditSession)

func WithClock(c clockwork.Clock) Option { return func(s *EditSession) { s.clock = c } }

func WithSavedWindow(d time.Duration) Option { return func(s *EditSession) { s.savedFor = d } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *EditSession) { s.logger = l } }

func NewEditSession(email string, history Replacer, opts ...Option) *EditSession {
	s := &EditSession{
		email:    email,
		history:  history,
		clock:    clockwork.NewRealClock(),
		savedFor: DefaultSavedWindow,
		logger:   zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load shows rec in Viewing state, dropping any draft and abandoning any
// commit still in flight.
func (s *EditSession) Load(rec entity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonLocked()
	rec.Result = rec.Result.Clone()
	s.record = rec
	s.loaded = true
	s.state = Viewing
	s.draft = entity.AnalysisResult{}
	s.savedAt = time.Time{}
}

// BeginEdit copies the committed result into a fresh draft. Calling it while
// already editing keeps the current draft.
func (s *EditSession) BeginEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNothingLoaded
	}
	if s.state == Editing {
		return nil
	}
	s.draft = s.record.Result.Clone()
	s.state = Editing
	s.savedAt = time.Time{}
	return nil
}

func (s *EditSession) SetField(field Field, value string) error {
	return s.mutate(func(d *entity.AnalysisResult) error {
		switch field {
		case FieldOverallImpression:
			d.OverallImpression = value
		case FieldDifferentialDiagnosis:
			d.DifferentialDiagnosis = value
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, field)
		}
		return nil
	})
}

func (s *EditSession) SetFinding(index int, sub FindingField, value string) error {
	return s.mutate(func(d *entity.AnalysisResult) error {
		if index < 0 || index >= len(d.KeyFindings) {
			return fmt.Errorf("%w: finding index %d out of range [0,%d)", ErrInvalidEdit, index, len(d.KeyFindings))
		}
		switch sub {
		case FindingLabel:
			d.KeyFindings[index].Finding = value
		case FindingDescription:
			d.KeyFindings[index].Description = value
		default:
			return fmt.Errorf("%w: unknown finding field %q", ErrInvalidEdit, sub)
		}
		return nil
	})
}

func (s *EditSession) SetRecommendation(index int, value string) error {
	return s.mutate(func(d *entity.AnalysisResult) error {
		if index < 0 || index >= len(d.Recommendations) {
			return fmt.Errorf("%w: recommendation index %d out of range [0,%d)", ErrInvalidEdit, index, len(d.Recommendations))
		}
		d.Recommendations[index] = value
		return nil
	})
}

func (s *EditSession) mutate(fn func(*entity.AnalysisResult) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if s.pending {
		return ErrCommitPending
	}
	return fn(&s.draft)
}

// Cancel discards the draft and returns to Viewing. Storage is not touched.
func (s *EditSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	s.abandonLocked()
	s.state = Viewing
	s.draft = entity.AnalysisResult{}
	return nil
}

// Commit writes the draft through the Replacer and, once the store has
// acknowledged it, makes it the committed result. On failure the session
// stays in Editing with the draft intact.
func (s *EditSession) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Editing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	if s.pending {
		s.mu.Unlock()
		return ErrCommitPending
	}
	draft := s.draft.Clone()
	id := s.record.ID
	gen := s.gen
	cctx, cancel := context.WithCancel(ctx)
	s.pending = true
	s.cancelCommit = cancel
	s.mu.Unlock()

	_, err := s.history.Replace(cctx, s.email, id, draft)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Load or Cancel ran meanwhile and already cleared pending.
		metrics.Commits.WithLabelValues("abandoned").Inc()
		s.logger.Warnw("commit abandoned", "email", s.email, "id", id, "err", err)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAbandoned, err)
		}
		return ErrAbandoned
	}
	s.pending = false
	s.cancelCommit = nil
	metrics.Commits.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.Warnw("commit failed", "email", s.email, "id", id, "err", err)
		return err
	}
	s.record.Result = draft
	s.state = Viewing
	s.draft = entity.AnalysisResult{}
	s.savedAt = s.clock.Now()
	s.logger.Infow("report saved", "email", s.email, "id", id)
	return nil
}

// Saved reports whether a commit succeeded within the saved window.
func (s *EditSession) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedLocked()
}

func (s *EditSession) savedLocked() bool {
	return !s.savedAt.IsZero() && s.clock.Since(s.savedAt) < s.savedFor
}

func (s *EditSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns copies of the committed record and, while editing, the
// draft.
func (s *EditSession) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return Snapshot{}, ErrNothingLoaded
	}
	rec := s.record
	rec.Result = rec.Result.Clone()
	snap := Snapshot{
		State:     s.state,
		StateName: s.state.String(),
		Record:    rec,
		Saved:     s.savedLocked(),
		Pending:   s.pending,
	}
	if s.state == Editing {
		d := s.draft.Clone()
		snap.Draft = &d
	}
	return snap, nil
}

func (s *EditSession) abandonLocked() {
	s.gen++
	if s.cancelCommit != nil {
		s.cancelCommit()
		s.cancelCommit = nil
	}
	s.pending = false
}
