package notify

import (
	"fmt"

	"github.com/MontelAle/participium-sub001/internal/metrics"
	"github.com/MontelAle/participium-sub001/internal/models"

	"github.com/ThreeDotsLabs/watermill/message"
	"gorm.io/gorm"
)

var statusLabels = map[string]string{
	models.StatusPending:    "pending approval",
	models.StatusAssigned:   "assigned",
	models.StatusInProgress: "in progress",
	models.StatusSuspended:  "suspended",
	models.StatusRejected:   "rejected",
	models.StatusResolved:   "resolved",
}

// Consumer stores notifications for report events.
type Consumer struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func NewConsumer(db *gorm.DB, m *metrics.Metrics) *Consumer {
	return &Consumer{db: db, metrics: m}
}

// HandleStatusChanged notifies the reporter, unless they made the change.
func (c *Consumer) HandleStatusChanged(msg *message.Message) error {
	var ev StatusChanged
	if err := decode(msg.Payload, &ev); err != nil {
		return err
	}
	if ev.ReporterID == 0 || ev.ReporterID == ev.ChangedBy {
		return nil
	}

	body := fmt.Sprintf("Your report %q is now %s.", ev.Title, statusLabel(ev.To))
	if ev.To == models.StatusRejected && ev.Reason != "" {
		body += " Reason: " + ev.Reason
	}
	reportID := ev.ReportID
	n := models.Notification{
		UserID:   ev.ReporterID,
		ReportID: &reportID,
		Kind:     models.NotificationStatusChange,
		Title:    fmt.Sprintf("Report #%d %s", ev.ReportID, statusLabel(ev.To)),
		Body:     body,
	}
	return c.store(msg, n)
}

// HandleMessagePosted notifies every recipient but the author. Recipients
// that no longer exist are skipped. All rows go in one statement, so a retried
// message never duplicates notifications.
func (c *Consumer) HandleMessagePosted(msg *message.Message) error {
	var ev MessagePosted
	if err := decode(msg.Payload, &ev); err != nil {
		return err
	}

	seen := make(map[uint]bool, len(ev.Recipients))
	ids := make([]uint, 0, len(ev.Recipients))
	for _, uid := range ev.Recipients {
		if uid == 0 || uid == ev.AuthorID || seen[uid] {
			continue
		}
		seen[uid] = true
		ids = append(ids, uid)
	}
	if len(ids) == 0 {
		return nil
	}

	db := c.db.WithContext(msg.Context())
	var existing []uint
	if err := db.Model(&models.User{}).Where("id IN ?", ids).Order("id").Pluck("id", &existing).Error; err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}

	batch := make([]models.Notification, 0, len(existing))
	for _, uid := range existing {
		reportID := ev.ReportID
		batch = append(batch, models.Notification{
			UserID:   uid,
			ReportID: &reportID,
			Kind:     models.NotificationMessage,
			Title:    fmt.Sprintf("New message on report #%d", ev.ReportID),
			Body:     fmt.Sprintf("%s wrote: %s", ev.AuthorName, ev.Body),
		})
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&batch).Error
	})
	if err != nil {
		return fmt.Errorf("store message notifications for report %d: %w", ev.ReportID, err)
	}
	for range batch {
		c.metrics.NotificationDelivered()
	}
	return nil
}

func (c *Consumer) store(msg *message.Message, n models.Notification) error {
	if err := c.db.WithContext(msg.Context()).Create(&n).Error; err != nil {
		return fmt.Errorf("store notification for user %d: %w", n.UserID, err)
	}
	c.metrics.NotificationDelivered()
	return nil
}

func statusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}
