package handler

import (
	"net/http"
	"time"

	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	DB       *gorm.DB
	PageSize int
}

func NewNotificationHandler(db *gorm.DB, pageSize int) *NotificationHandler {
	return &NotificationHandler{DB: db, PageSize: pageSize}
}

type notificationResp struct {
	ID        uint       `json:"id"`
	ReportID  *uint      `json:"report_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ListNotifications pages the caller's notifications, newest first.
// ?unread=true keeps only the unread ones.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	p := util.ParsePage(c, h.PageSize)

	base := h.DB.Model(&models.Notification{}).Where("user_id = ?", user.ID)
	if c.Query("unread") == "true" {
		base = base.Where("read_at IS NULL")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		internalError(c, err, "failed to count notifications")
		return
	}
	var unread int64
	if err := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", user.ID).
		Count(&unread).Error; err != nil {
		internalError(c, err, "failed to count notifications")
		return
	}

	var rows []models.Notification
	if err := base.Order("created_at DESC, id DESC").
		Limit(p.Size).
		Offset(p.Offset).
		Find(&rows).Error; err != nil {
		internalError(c, err, "failed to list notifications")
		return
	}

	items := make([]notificationResp, 0, len(rows))
	for i := range rows {
		n := &rows[i]
		items = append(items, notificationResp{
			ID:        n.ID,
			ReportID:  n.ReportID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			Read:      n.ReadAt != nil,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	util.Success(c, util.Response{
		"items":  items,
		"total":  total,
		"unread": unread,
		"page":   p.Page,
		"size":   p.Size,
	})
}

// MarkRead marks one of the caller's notifications as read. Other users'
// notifications answer 404.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := util.ParseID(c, "id")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	var n models.Notification
	if err := h.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&n).Error; err != nil {
		notFoundOr(c, err, "notification")
		return
	}
	if n.ReadAt == nil {
		now := time.Now()
		if err := h.DB.Model(&n).Update("read_at", now).Error; err != nil {
			internalError(c, err, "failed to update notification")
			return
		}
	}
	util.Success(c, util.Response{"id": n.ID, "read": true})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	res := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", user.ID).
		Update("read_at", time.Now())
	if res.Error != nil {
		internalError(c, res.Error, "failed to update notifications")
		return
	}
	util.Success(c, util.Response{"updated": res.RowsAffected})
}
