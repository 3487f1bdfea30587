package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
)

// SessionRepo persists the single process-wide session marker.
type SessionRepo struct {
	store *recordstore.Store
}

func NewSessionRepo(store *recordstore.Store) *SessionRepo {
	return &SessionRepo{store: store}
}

// Get returns the current marker or ErrNoRecord when logged out.
func (r *SessionRepo) Get(ctx context.Context) (*entity.Session, error) {
	raw, err := r.store.Read(ctx, recordstore.SessionKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoRecord
	}
	var s entity.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session marker: %v", recordstore.ErrCorrupt, err)
	}
	return &s, nil
}

func (r *SessionRepo) Put(ctx context.Context, s entity.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, recordstore.SessionKey, raw)
}

func (r *SessionRepo) Clear(ctx context.Context) error {
	return r.store.Delete(ctx, recordstore.SessionKey)
}
