package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LogHandler serves the audit trail to administrators.
type LogHandler struct {
	DB         *gorm.DB
	EncryptKey string
	PageSize   int
}

func NewLogHandler(db *gorm.DB, encryptKey string, pageSize int) *LogHandler {
	return &LogHandler{DB: db, EncryptKey: encryptKey, PageSize: pageSize}
}

type logResp struct {
	ID        uint      `json:"id"`
	UserID    *uint     `json:"user_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Action    string    `json:"action"`
	Status    int       `json:"status"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLogs pages audit records, newest first. Filters: start and end
// (YYYY-MM-DD, end inclusive), user_id and method.
func (h *LogHandler) ListLogs(c *gin.Context) {
	p := util.ParsePage(c, h.PageSize)

	base := h.DB.Model(&models.AuditLog{})
	if s := c.Query("start"); s != "" {
		start, err := util.ValidateDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid start date")
			return
		}
		base = base.Where("created_at >= ?", start)
	}
	if s := c.Query("end"); s != "" {
		end, err := util.ValidateDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid end date")
			return
		}
		base = base.Where("created_at < ?", end.Add(24*time.Hour))
	}
	if s := c.Query("user_id"); s != "" {
		uid, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid user_id")
			return
		}
		base = base.Where("user_id = ?", uid)
	}
	if m := strings.ToUpper(strings.TrimSpace(c.Query("method"))); m != "" {
		base = base.Where("method = ?", m)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		internalError(c, err, "failed to count logs")
		return
	}

	var logs []models.AuditLog
	if err := base.Order("created_at DESC, id DESC").
		Limit(p.Size).
		Offset(p.Offset).
		Find(&logs).Error; err != nil {
		internalError(c, err, "failed to list logs")
		return
	}

	items := make([]logResp, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		items = append(items, logResp{
			ID:        l.ID,
			UserID:    l.UserID,
			Method:    l.Method,
			Path:      util.DecryptField(h.EncryptKey, l.PathEnc),
			Action:    util.DecryptField(h.EncryptKey, l.ActionEnc),
			Status:    l.Status,
			IP:        l.IP,
			UserAgent: l.UserAgent,
			CreatedAt: l.CreatedAt,
		})
	}

	util.Success(c, util.Response{
		"items": items,
		"total": total,
		"page":  p.Page,
		"size":  p.Size,
	})
}
