// Package history keeps the per-account list of analysis records.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
)

var ErrNotFound = errors.New("history record not found")

type Manager struct {
	store  *recordstore.Store
	logger *zap.SugaredLogger
}

func NewManager(store *recordstore.Store, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{store: store, logger: logger}
}

// List returns the account's records, newest first.
func (m *Manager) List(ctx context.Context, email string) ([]entity.Record, error) {
	raw, err := m.store.Read(ctx, recordstore.HistoryKey(email))
	if err != nil {
		return nil, err
	}
	var records []entity.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode history for %s: %v", recordstore.ErrCorrupt, email, err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	sortNewestFirst(records)
	return records, nil
}

// Get returns one record by id.
func (m *Manager) Get(ctx context.Context, email, id string) (entity.Record, error) {
	records, err := m.List(ctx, email)
	if err != nil {
		return entity.Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return entity.Record{}, ErrNotFound
}

// Append prepends rec and returns the updated list. Ids are not deduplicated;
// callers supply a fresh one.
func (m *Manager) Append(ctx context.Context, email string, rec entity.Record) ([]entity.Record, error) {
	records, err := m.List(ctx, email)
	if err != nil {
		return nil, err
	}
	rec.Result = rec.Result.Clone()
	records = append([]entity.Record{rec}, records...)
	sortNewestFirst(records)
	if err := m.save(ctx, email, records); err != nil {
		return nil, err
	}
	m.logger.Debugw("history record appended", "email", email, "id", rec.ID)
	return records, nil
}

// Replace swaps the result of record id. A missing id returns ErrNotFound and
// writes nothing.
func (m *Manager) Replace(ctx context.Context, email, id string, result entity.AnalysisResult) ([]entity.Record, error) {
	records, err := m.List(ctx, email)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range records {
		if records[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return records, ErrNotFound
	}
	records[idx].Result = result.Clone()
	if err := m.save(ctx, email, records); err != nil {
		return nil, err
	}
	m.logger.Debugw("history record replaced", "email", email, "id", id)
	return records, nil
}

// Clear removes every record of the account.
func (m *Manager) Clear(ctx context.Context, email string) error {
	if err := m.store.Delete(ctx, recordstore.HistoryKey(email)); err != nil {
		return err
	}
	m.logger.Infow("history cleared", "email", email)
	return nil
}

func (m *Manager) save(ctx context.Context, email string, records []entity.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return m.store.Write(ctx, recordstore.HistoryKey(email), raw)
}

// sortNewestFirst orders by date descending; equal dates fall back to id
// descending so the order is total.
func sortNewestFirst(records []entity.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID > b.ID
	})
}
