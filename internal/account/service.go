package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-pathology/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
)

var (
	ErrConflict           = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("account not found")
	ErrNoSession          = errors.New("no active session")
	ErrWeakPassword       = errors.New("password is not strong enough")
	ErrInvalidInput       = errors.New("invalid input")
)

// demo account handed out by DemoProvisioning
const demoPassword = "password"

var demoProfile = ProfileFields{
	Name:           "Dr. Alex Doe",
	Title:          "Pathologist",
	Hospital:       "General Hospital",
	Qualifications: "MD, FRCPath",
	Avatar:         entity.DefaultAvatar,
}

// ProfileFields are the user-supplied attributes of a new or updated profile.
type ProfileFields struct {
	Name           string `json:"name"`
	Title          string `json:"title"`
	Hospital       string `json:"hospital"`
	Qualifications string `json:"qualifications"`
	Avatar         string `json:"avatar"`
}

// Directory owns accounts, their credentials and the session marker.
type Directory struct {
	creds    *accountrepo.CredentialRepo
	sessions *accountrepo.SessionRepo
	hasher   PasswordHasher
	tokens   *TokenIssuer
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
	// DemoProvisioning makes Authenticate create the demo profile for an
	// unknown email instead of failing. Off unless explicitly enabled.
	DemoProvisioning bool
}

func NewDirectory(store *recordstore.Store, tokens *TokenIssuer, hasher PasswordHasher, clock clockwork.Clock, logger *zap.SugaredLogger) *Directory {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Directory{
		creds:    accountrepo.NewCredentialRepo(store),
		sessions: accountrepo.NewSessionRepo(store),
		hasher:   hasher,
		tokens:   tokens,
		clock:    clock,
		logger:   logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new account and logs it in. An existing email is a
// conflict and leaves the stored record untouched.
func (d *Directory) Create(ctx context.Context, fields ProfileFields, email, password string) (entity.Profile, entity.Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return entity.Profile{}, entity.Session{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if GradePassword(password) != StrengthStrong {
		return entity.Profile{}, entity.Session{}, ErrWeakPassword
	}

	if _, err := d.creds.Get(ctx, email); err == nil {
		return entity.Profile{}, entity.Session{}, ErrConflict
	} else if !errors.Is(err, accountrepo.ErrNoRecord) {
		return entity.Profile{}, entity.Session{}, err
	}

	cred, err := d.newCredential(email, fields, password)
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	if err := d.creds.Save(ctx, cred); err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	d.logger.Infow("account created", "email", email)

	sess, err := d.startSession(ctx, email)
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	return cred.Public(), sess, nil
}

// Authenticate checks email and password and starts a session.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (entity.Profile, entity.Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return entity.Profile{}, entity.Session{}, ErrInvalidCredentials
	}

	cred, err := d.creds.Get(ctx, email)
	switch {
	case errors.Is(err, accountrepo.ErrNoRecord) && d.DemoProvisioning:
		cred, err = d.newCredential(email, demoProfile, demoPassword)
		if err != nil {
			return entity.Profile{}, entity.Session{}, err
		}
		if err := d.creds.Save(ctx, cred); err != nil {
			return entity.Profile{}, entity.Session{}, err
		}
		d.logger.Warnw("demo account provisioned on login", "email", email)
	case errors.Is(err, accountrepo.ErrNoRecord):
		// same answer as a wrong password to avoid user enumeration
		return entity.Profile{}, entity.Session{}, ErrInvalidCredentials
	case err != nil:
		return entity.Profile{}, entity.Session{}, err
	default:
		if cred.PasswordHash == "" || !d.hasher.Verify(cred.PasswordHash, password) {
			d.logger.Debugw("login failed", "email", email)
			return entity.Profile{}, entity.Session{}, ErrInvalidCredentials
		}
	}

	sess, err := d.startSession(ctx, email)
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	return cred.Public(), sess, nil
}

// CurrentSession resolves the stored session marker. A marker pointing at a
// missing account counts as no session.
func (d *Directory) CurrentSession(ctx context.Context) (entity.Profile, entity.Session, error) {
	marker, err := d.sessions.Get(ctx)
	if errors.Is(err, accountrepo.ErrNoRecord) {
		return entity.Profile{}, entity.Session{}, ErrNoSession
	}
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	cred, err := d.creds.Get(ctx, marker.Email)
	if errors.Is(err, accountrepo.ErrNoRecord) {
		d.logger.Warnw("stale session marker", "email", marker.Email)
		return entity.Profile{}, entity.Session{}, ErrNoSession
	}
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	sess := *marker
	if d.tokens != nil {
		if sess.Token, err = d.tokens.Issue(sess.Email, sess.ID, sess.IssuedAt); err != nil {
			return entity.Profile{}, entity.Session{}, err
		}
	}
	return cred.Public(), sess, nil
}

// Resolve maps a bearer token to its session. The token must belong to the
// session currently recorded in the marker; a later login or a logout
// invalidates it.
func (d *Directory) Resolve(ctx context.Context, token string) (entity.Profile, entity.Session, error) {
	if d.tokens == nil || token == "" {
		return entity.Profile{}, entity.Session{}, ErrNoSession
	}
	claims, err := d.tokens.Parse(token)
	if err != nil {
		d.logger.Debugw("token rejected", "err", err)
		return entity.Profile{}, entity.Session{}, ErrNoSession
	}
	profile, sess, err := d.CurrentSession(ctx)
	if err != nil {
		return entity.Profile{}, entity.Session{}, err
	}
	if sess.ID != claims.ID || sess.Email != claims.Subject {
		return entity.Profile{}, entity.Session{}, ErrNoSession
	}
	sess.Token = token
	return profile, sess, nil
}

// Update replaces every mutable profile field of the session's account.
func (d *Directory) Update(ctx context.Context, sess entity.Session, fields ProfileFields) (entity.Profile, error) {
	cred, err := d.creds.Get(ctx, sess.Email)
	if errors.Is(err, accountrepo.ErrNoRecord) {
		return entity.Profile{}, ErrNotFound
	}
	if err != nil {
		return entity.Profile{}, err
	}
	cred.Name = fields.Name
	cred.Title = fields.Title
	cred.Hospital = fields.Hospital
	cred.Qualifications = fields.Qualifications
	cred.Avatar = fields.Avatar
	if cred.Avatar == "" {
		cred.Avatar = entity.DefaultAvatar
	}
	cred.UpdatedAt = d.clock.Now().UTC()
	if err := d.creds.Save(ctx, cred); err != nil {
		return entity.Profile{}, err
	}
	return cred.Public(), nil
}

// EndSession clears the session marker.
func (d *Directory) EndSession(ctx context.Context) error {
	return d.sessions.Clear(ctx)
}

func (d *Directory) newCredential(email string, fields ProfileFields, password string) (*entity.Credential, error) {
	hash, algo, err := d.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := d.clock.Now().UTC()
	avatar := fields.Avatar
	if avatar == "" {
		avatar = entity.DefaultAvatar
	}
	return &entity.Credential{
		Profile: entity.Profile{
			Email:          email,
			Name:           strings.TrimSpace(fields.Name),
			Title:          strings.TrimSpace(fields.Title),
			Hospital:       strings.TrimSpace(fields.Hospital),
			Qualifications: strings.TrimSpace(fields.Qualifications),
			Avatar:         avatar,
		},
		PasswordHash: hash,
		PasswordAlgo: algo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (d *Directory) startSession(ctx context.Context, email string) (entity.Session, error) {
	sess := entity.Session{
		Email:    email,
		ID:       uuid.NewString(),
		IssuedAt: d.clock.Now().UTC(),
	}
	if err := d.sessions.Put(ctx, sess); err != nil {
		return entity.Session{}, err
	}
	if d.tokens != nil {
		tok, err := d.tokens.Issue(sess.Email, sess.ID, sess.IssuedAt)
		if err != nil {
			return entity.Session{}, fmt.Errorf("issue token: %w", err)
		}
		sess.Token = tok
	}
	return sess, nil
}
