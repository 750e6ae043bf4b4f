// Package mailer delivers account e-mails.
package mailer

import (
	"context"
	"sync"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
)

// Mailer sends the e-mail verification token to a newly registered user.
type Mailer interface {
	SendVerification(ctx context.Context, user *models.User, token string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) SendVerification(_ context.Context, user *models.User, token string) error {
	logging.Info().
		Uint("user_id", user.ID).
		Str("email", user.Email).
		Str("token", token).
		Msg("verification e-mail")
	return nil
}

// Sent is a message captured by MemoryMailer.
type Sent struct {
	UserID uint
	Email  string
	Token  string
}

// MemoryMailer records messages, for tests.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Sent
}

func (m *MemoryMailer) SendVerification(_ context.Context, user *models.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{UserID: user.ID, Email: user.Email, Token: token})
	return nil
}

// Last returns the most recent message.
func (m *MemoryMailer) Last() (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}, false
	}
	return m.sent[len(m.sent)-1], true
}
