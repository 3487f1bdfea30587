package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
)

// ErrNoRecord is returned when the addressed record does not exist.
var ErrNoRecord = errors.New("no record")

// CredentialRepo maps account emails to stored credential records.
type CredentialRepo struct {
	store *recordstore.Store
}

func NewCredentialRepo(store *recordstore.Store) *CredentialRepo {
	return &CredentialRepo{store: store}
}

// Get returns the credential record for email or ErrNoRecord.
func (r *CredentialRepo) Get(ctx context.Context, email string) (*entity.Credential, error) {
	raw, err := r.store.Read(ctx, recordstore.AccountKey(email))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoRecord
	}
	var c entity.Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: decode account %s: %v", recordstore.ErrCorrupt, email, err)
	}
	return &c, nil
}

// Save writes c under its email, replacing any previous record.
func (r *CredentialRepo) Save(ctx context.Context, c *entity.Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, recordstore.AccountKey(c.Email), raw)
}
