// Package auth is the local identity provider: operator accounts with bcrypt
// password hashes, HS256 session tokens and an auth-state change stream.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/intelboard/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operators (
	email         TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
	jti        TEXT PRIMARY KEY,
	expires_at DATETIME NOT NULL
);
`

const issuer = "intelboard"

var (
	// ErrInvalidCredentials is returned by SignIn for an unknown email or a
	// wrong password. Its message is shown to the operator as is.
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = fmt.Errorf("invalid session token: %w", apperr.ErrUnauthorized)
	// ErrTokenRevoked is returned for tokens that were signed out.
	ErrTokenRevoked = fmt.Errorf("session token has been revoked: %w", apperr.ErrUnauthorized)
)

// ChangeKind tells whether an operator signed in or out.
type ChangeKind int

const (
	SignedIn ChangeKind = iota + 1
	SignedOut
)

func (k ChangeKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

// Identity is the verified content of a session token.
type Identity struct {
	SessionID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Change is one auth-state notification.
type Change struct {
	Kind     ChangeKind
	Identity Identity
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Config holds the provider settings.
type Config struct {
	Secret string
	TTL    time.Duration
}

// Option configures a LocalProvider.
type Option func(*LocalProvider)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(p *LocalProvider) { p.cost = cost }
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *LocalProvider) { p.logger = l }
}

// LocalProvider authenticates operators stored in SQLite.
type LocalProvider struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
	cost   int
	logger *slog.Logger
	now    func() time.Time

	// dummyHash is compared against when the email is unknown, so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
	compare   func(hash, password []byte) error

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Change)
}

// NewLocalProvider creates the auth tables in db if needed.
func NewLocalProvider(db *sql.DB, cfg Config, opts ...Option) (*LocalProvider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: empty session secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("auth: apply schema: %w", err)
	}
	p := &LocalProvider{
		db:        db,
		secret:    []byte(cfg.Secret),
		ttl:       cfg.TTL,
		cost:      bcrypt.DefaultCost,
		logger:    slog.Default(),
		now:       time.Now,
		compare:   bcrypt.CompareHashAndPassword,
		listeners: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(p)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), p.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash placeholder password: %w", err)
	}
	p.dummyHash = dummy
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddOperator registers an operator account.
func (p *LocalProvider) AddOperator(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("auth: add operator: %w: email is invalid", apperr.ErrValidation)
	}
	if len(password) < 8 {
		return fmt.Errorf("auth: add operator: %w: password must be at least 8 characters", apperr.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO operators (email, password_hash, created_at) VALUES (?, ?, ?)`,
		email, string(hash), p.now().UTC())
	if err != nil {
		return fmt.Errorf("auth: add operator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("auth: operator %s: %w", email, apperr.ErrAlreadyExists)
	}
	return nil
}

// HasOperators reports whether any operator account exists.
func (p *LocalProvider) HasOperators(ctx context.Context) (bool, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n); err != nil {
		return false, fmt.Errorf("auth: count operators: %w", err)
	}
	return n > 0, nil
}

// SignIn checks the credentials and issues a session token. Subscribers
// receive a SignedIn change before SignIn returns.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, Identity, error) {
	email = normalizeEmail(email)
	var hash string
	err := p.db.QueryRowContext(ctx, `SELECT password_hash FROM operators WHERE email = ?`, email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = p.compare(p.dummyHash, []byte(password))
		return "", Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", Identity{}, fmt.Errorf("auth: load operator: %w", err)
	}
	if p.compare([]byte(hash), []byte(password)) != nil {
		return "", Identity{}, ErrInvalidCredentials
	}

	now := p.now()
	id := Identity{
		SessionID: uuid.NewString(),
		Email:     email,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: now.Add(p.ttl).Truncate(time.Second),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.SessionID,
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(id.IssuedAt),
			NotBefore: jwt.NewNumericDate(id.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
		Email: email,
	}).SignedString(p.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("auth: sign token: %w", err)
	}

	p.logger.Info("auth: operator signed in", slog.String("email", email), slog.String("session", id.SessionID))
	p.emit(Change{Kind: SignedIn, Identity: id})
	return token, id, nil
}

// Verify parses the token and rejects revoked ones.
func (p *LocalProvider) Verify(ctx context.Context, token string) (Identity, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(p.now))
	if err != nil || !parsed.Valid || c.ID == "" {
		return Identity{}, ErrInvalidToken
	}

	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, c.ID).Scan(&n); err != nil {
		return Identity{}, fmt.Errorf("auth: check revocation: %w", err)
	}
	if n > 0 {
		return Identity{}, ErrTokenRevoked
	}

	id := Identity{SessionID: c.ID, Email: c.Email}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

// SignOut revokes the token. Subscribers receive a SignedOut change before
// SignOut returns.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	id, err := p.Verify(ctx, token)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		id.SessionID, id.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, p.now().UTC()); err != nil {
		p.logger.Warn("auth: purge revoked tokens", slog.String("error", err.Error()))
	}

	p.logger.Info("auth: operator signed out", slog.String("email", id.Email), slog.String("session", id.SessionID))
	p.emit(Change{Kind: SignedOut, Identity: id})
	return nil
}

// Subscribe registers fn for auth-state changes. The returned func removes it.
func (p *LocalProvider) Subscribe(fn func(Change)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *LocalProvider) emit(c Change) {
	p.mu.Lock()
	fns := make([]func(Change), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
