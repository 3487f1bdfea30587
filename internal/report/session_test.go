package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/history"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
)

const doc = "doc@example.com"

func nashRecord() entity.Record {
	return entity.Record{
		ID:       "2mVw1Xr0sCgbW3c7KQk0Xk1sTnY",
		Date:     entity.NewTimestamp(time.Date(2026, 10, 14, 16, 30, 0, 0, time.UTC)),
		ImageURL: "data:image/png;base64,AAAA",
		Result: entity.AnalysisResult{
			OverallImpression: "Steatohepatitis pattern.",
			KeyFindings: []entity.Finding{
				{Finding: "Steatosis", Description: "Macrovesicular, 40%."},
				{Finding: "Ballooning", Description: "Present in zone 3."},
			},
			DifferentialDiagnosis: "NASH",
			Recommendations:       []string{"Trichrome stain", "Reticulin stain"},
		},
	}
}

type fixture struct {
	store   *recordstore.Store
	history *history.Manager
	clock   *clockwork.FakeClock
	session *EditSession
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.WithLatency(0))
	h := history.NewManager(store, nil)
	_, err := h.Append(ctx, doc, nashRecord())
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	s := NewEditSession(doc, h, WithClock(clock))
	s.Load(nashRecord())
	return fixture{store: store, history: h, clock: clock, session: s}
}

func storedDiagnosis(t *testing.T, h *history.Manager) []string {
	t.Helper()
	records, err := h.List(context.Background(), doc)
	require.NoError(t, err)
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Result.DifferentialDiagnosis)
	}
	return out
}

func TestEditSession_CancelLeavesStoredValue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.BeginEdit())
	require.NoError(t, f.session.SetField(FieldDifferentialDiagnosis, "NAFLD"))
	require.NoError(t, f.session.Cancel())

	assert.Equal(t, Viewing, f.session.State())
	assert.Equal(t, []string{"NASH"}, storedDiagnosis(t, f.history))
	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "NASH", snap.Record.Result.DifferentialDiagnosis)
	assert.Nil(t, snap.Draft)
}

func TestEditSession_CommitPersistsDraft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.BeginEdit())
	require.NoError(t, f.session.SetField(FieldDifferentialDiagnosis, "NAFLD"))
	require.NoError(t, f.session.Commit(context.Background()))

	assert.Equal(t, Viewing, f.session.State())
	assert.Equal(t, []string{"NAFLD"}, storedDiagnosis(t, f.history))
	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "NAFLD", snap.Record.Result.DifferentialDiagnosis)
}

func TestEditSession_CancelRestoresAfterManyMutations(t *testing.T) {
	f := newFixture(t)
	want := nashRecord().Result

	require.NoError(t, f.session.BeginEdit())
	require.NoError(t, f.session.SetField(FieldOverallImpression, "changed"))
	require.NoError(t, f.session.SetFinding(0, FindingLabel, "Fibrosis"))
	require.NoError(t, f.session.SetFinding(1, FindingDescription, "absent"))
	require.NoError(t, f.session.SetRecommendation(1, "PAS-D stain"))
	require.NoError(t, f.session.Cancel())

	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, want, snap.Record.Result)

	// a fresh edit starts from the committed value, not the discarded draft
	require.NoError(t, f.session.BeginEdit())
	snap, err = f.session.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Draft)
	assert.Equal(t, want, *snap.Draft)
}

func TestEditSession_RoundTripCommitIsByteEquivalent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, err := f.store.Read(ctx, recordstore.HistoryKey(doc))
	require.NoError(t, err)

	require.NoError(t, f.session.BeginEdit())
	require.NoError(t, f.session.Commit(ctx))

	after, err := f.store.Read(ctx, recordstore.HistoryKey(doc))
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestEditSession_CommitKeepsStoredDateText(t *testing.T) {
	ctx := context.Background()
	backend := recordstore.NewMemoryBackend()
	store := recordstore.New(backend, recordstore.WithLatency(0))
	h := history.NewManager(store, nil)
	stored := `[{"id":"b","date":"2024-01-02T10:00:00.000Z","imageUrl":"data:image/png;base64,AAAA",` +
		`"result":{"overallImpression":"o","keyFindings":[{"finding":"Steatosis","description":"Mild"}],"differentialDiagnosis":"NASH","recommendations":["r"]}},` +
		`{"id":"a","date":"2024-01-01T09:00:00Z","imageUrl":"data:image/png;base64,BBBB",` +
		`"result":{"overallImpression":"p","keyFindings":[],"differentialDiagnosis":"NAFLD","recommendations":[]}}]`
	require.NoError(t, backend.Put(ctx, recordstore.HistoryKey(doc), []byte(stored)))

	rec, err := h.Get(ctx, doc, "b")
	require.NoError(t, err)
	s := NewEditSession(doc, h)
	s.Load(rec)
	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.Commit(ctx))

	after, ok, err := backend.Get(ctx, recordstore.HistoryKey(doc))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored, string(after))
}

func TestEditSession_LoadDropsDraft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.BeginEdit())
	require.NoError(t, f.session.SetField(FieldOverallImpression, "half-typed"))

	other := nashRecord()
	other.ID = "other"
	other.Result.OverallImpression = "Other slide."
	f.session.Load(other)

	assert.Equal(t, Viewing, f.session.State())
	require.NoError(t, f.session.BeginEdit())
	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "Other slide.", snap.Draft.OverallImpression)
}

func TestEditSession_MutationRules(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.session.SetField(FieldOverallImpression, "x"), ErrNotEditing)
	assert.ErrorIs(t, f.session.Cancel(), ErrNotEditing)
	assert.ErrorIs(t, f.session.Commit(context.Background()), ErrNotEditing)

	require.NoError(t, f.session.BeginEdit())
	cases := []struct {
		name string
		err  error
	}{
		{"unknown field", f.session.SetField("potentialDiagnosis", "x")},
		{"finding index high", f.session.SetFinding(2, FindingLabel, "x")},
		{"finding index negative", f.session.SetFinding(-1, FindingLabel, "x")},
		{"finding subfield", f.session.SetFinding(0, "severity", "x")},
		{"recommendation index", f.session.SetRecommendation(5, "x")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.err, ErrInvalidEdit)
		})
	}

	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, nashRecord().Result, *snap.Draft, "rejected edits leave the draft untouched")
}

func TestEditSession_NothingLoaded(t *testing.T) {
	s := NewEditSession(doc, nil)
	assert.ErrorIs(t, s.BeginEdit(), ErrNothingLoaded)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNothingLoaded)
}

type failingReplacer struct{ err error }

func (r failingReplacer) Replace(context.Context, string, string, entity.AnalysisResult) ([]entity.Record, error) {
	return nil, r.err
}

func TestEditSession_FailedCommitKeepsDraft(t *testing.T) {
	boom := errors.New("storage unavailable")
	s := NewEditSession(doc, failingReplacer{err: boom})
	s.Load(nashRecord())
	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.SetField(FieldDifferentialDiagnosis, "NAFLD"))

	err := s.Commit(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Editing, s.State())
	assert.False(t, s.Saved())
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "NAFLD", snap.Draft.DifferentialDiagnosis)
	assert.Equal(t, "NASH", snap.Record.Result.DifferentialDiagnosis)
}

func TestEditSession_ReplaceNotFoundKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ghost := nashRecord()
	ghost.ID = "missing"
	f.session.Load(ghost)
	require.NoError(t, f.session.BeginEdit())

	err := f.session.Commit(context.Background())
	require.ErrorIs(t, err, history.ErrNotFound)
	assert.Equal(t, Editing, f.session.State())
}

func TestEditSession_SavedWindow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.BeginEdit())
	assert.False(t, f.session.Saved())
	require.NoError(t, f.session.Commit(context.Background()))

	assert.True(t, f.session.Saved())
	f.clock.Advance(DefaultSavedWindow - time.Millisecond)
	assert.True(t, f.session.Saved())
	f.clock.Advance(time.Millisecond)
	assert.False(t, f.session.Saved())
}

// blockingReplacer waits for its context so tests can abandon a commit
// while it is in flight.
type blockingReplacer struct {
	started chan struct{}
	calls   int
}

func (r *blockingReplacer) Replace(ctx context.Context, _, _ string, _ entity.AnalysisResult) ([]entity.Record, error) {
	r.calls++
	close(r.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEditSession_CancelAbandonsInFlightCommit(t *testing.T) {
	r := &blockingReplacer{started: make(chan struct{})}
	s := NewEditSession(doc, r)
	s.Load(nashRecord())
	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.SetField(FieldDifferentialDiagnosis, "NAFLD"))

	done := make(chan error, 1)
	go func() { done <- s.Commit(context.Background()) }()
	<-r.started

	assert.ErrorIs(t, s.SetField(FieldOverallImpression, "x"), ErrCommitPending)
	require.NoError(t, s.Cancel())

	err := <-done
	require.ErrorIs(t, err, ErrAbandoned)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Viewing, s.State())
	assert.False(t, s.Saved())
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "NASH", snap.Record.Result.DifferentialDiagnosis)
}

func TestEditSession_LoadCancelsInFlightStoreWrite(t *testing.T) {
	ctx := context.Background()
	store := recordstore.New(recordstore.NewMemoryBackend(), recordstore.WithLatency(time.Hour))

	h := history.NewManager(store, nil)
	s := NewEditSession(doc, h)
	s.Load(nashRecord())
	require.NoError(t, s.BeginEdit())

	done := make(chan error, 1)
	go func() { done <- s.Commit(ctx) }()
	// wait until the commit is in flight
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot()
		return err == nil && snap.Pending
	}, time.Second, time.Millisecond)

	s.Load(nashRecord())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("commit did not observe cancellation")
	}
}

func TestSnapshot_JSON(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.BeginEdit())
	snap, err := f.session.Snapshot()
	require.NoError(t, err)
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "editing", got["state"])
	assert.Contains(t, got, "draft")
	assert.Equal(t, false, got["saved"])
}
