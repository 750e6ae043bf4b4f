package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome labels the result of resolving a cookie.
type Outcome string

const (
	OutcomeMissing       Outcome = "anonymous_missing"
	OutcomeMalformed     Outcome = "anonymous_malformed"
	OutcomeUnknown       Outcome = "anonymous_unknown"
	OutcomeExpired       Outcome = "anonymous_expired"
	OutcomeMismatch      Outcome = "anonymous_mismatch"
	OutcomeError         Outcome = "anonymous_error"
	OutcomeAuthenticated Outcome = "authenticated"
)

// Identity is a resolved caller. The user never carries a password hash.
type Identity struct {
	User    *models.User
	Session *models.Session
}

// Store persists sessions and resolves cookies against them.
type Store struct {
	db      *gorm.DB
	ttl     time.Duration
	now     func() time.Time
	observe func(Outcome)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver is called with the outcome of every Resolve.
func WithObserver(fn func(Outcome)) Option {
	return func(s *Store) { s.observe = fn }
}

// NewStore returns a store whose sessions expire ttl after their last update.
func NewStore(db *gorm.DB, ttl time.Duration, opts ...Option) *Store {
	s := &Store{db: db, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is the validity window measured from a session's last update.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create opens a session for user and returns the cookie value.
func (s *Store) Create(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	secret, err := util.RandomString(secretLength)
	if err != nil {
		return "", nil, fmt.Errorf("generate secret: %w", err)
	}

	now := s.now()
	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		HashedSecret: HashSecret(secret),
		IPAddress:    ip,
		UserAgent:    truncate(userAgent, 255),
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return FormatToken(sess.ID, secret), sess, nil
}

// Resolve maps a cookie value to an identity. It returns nil (anonymous)
// on every failure and never returns an error.
func (s *Store) Resolve(ctx context.Context, raw string) *Identity {
	ident, outcome := s.resolve(ctx, raw)
	if s.observe != nil {
		s.observe(outcome)
	}
	return ident
}

func (s *Store) resolve(ctx context.Context, raw string) (*Identity, Outcome) {
	if raw == "" {
		return nil, OutcomeMissing
	}
	id, secret, ok := ParseToken(raw)
	if !ok {
		return nil, OutcomeMalformed
	}

	var sess models.Session
	err := s.db.WithContext(ctx).
		Preload("User.Role").
		Preload("User.Office").
		Where("id = ?", id).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, OutcomeUnknown
		}
		logging.Err(err).Str("session_id", id).Msg("session lookup failed")
		return nil, OutcomeError
	}

	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		return nil, OutcomeExpired
	}

	if !ConstantTimeEqual([]byte(HashSecret(secret)), []byte(sess.HashedSecret)) {
		return nil, OutcomeMismatch
	}

	user := sess.User.Sanitized()
	sess.User = models.User{}
	return &Identity{User: user, Session: &sess}, OutcomeAuthenticated
}

// Revoke deletes a session (logout).
func (s *Store) Revoke(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser deletes every session of userID except keepID.
func (s *Store) RevokeAllForUser(ctx context.Context, userID uint, keepID string) error {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if keepID != "" {
		q = q.Where("id <> ?", keepID)
	}
	if err := q.Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions that can no longer resolve.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl)
	res := s.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
