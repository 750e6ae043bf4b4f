package notify

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Topics on the in-process bus.
const (
	TopicStatusChanged = "report.status_changed"
	TopicMessagePosted = "report.message_posted"
)

// StatusChanged is published after a report moves to a new status.
type StatusChanged struct {
	ReportID   uint      `json:"report_id"`
	ReporterID uint      `json:"reporter_id"`
	Title      string    `json:"title"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedBy  uint      `json:"changed_by"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// MessagePosted is published after a message is added to a report thread.
type MessagePosted struct {
	ReportID   uint      `json:"report_id"`
	Title      string    `json:"title"`
	AuthorID   uint      `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Recipients []uint    `json:"recipients"`
	Body       string    `json:"body"`
	At         time.Time `json:"at"`
}

func encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

func decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}
