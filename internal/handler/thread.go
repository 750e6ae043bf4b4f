package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/notify"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ThreadHandler serves internal staff comments and the public message
// thread between a reporter and staff.
type ThreadHandler struct {
	DB     *gorm.DB
	Events notify.Publisher
}

func NewThreadHandler(db *gorm.DB, events notify.Publisher) *ThreadHandler {
	return &ThreadHandler{DB: db, Events: events}
}

type postReq struct {
	Body string `json:"body" binding:"required,max=2000"`
}

type threadEntryResp struct {
	ID        uint       `json:"id"`
	ReportID  uint       `json:"report_id"`
	Author    *userBrief `json:"author"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}

// ---------- comments (staff only) ----------

func (h *ThreadHandler) ListComments(c *gin.Context) {
	report, ok := h.loadReport(c)
	if !ok {
		return
	}
	var comments []models.Comment
	if err := h.DB.Preload("Author.Role").
		Where("report_id = ?", report.ID).
		Order("created_at, id").
		Find(&comments).Error; err != nil {
		internalError(c, err, "failed to list comments")
		return
	}

	items := make([]threadEntryResp, 0, len(comments))
	for i := range comments {
		cm := &comments[i]
		items = append(items, threadEntryResp{
			ID:        cm.ID,
			ReportID:  cm.ReportID,
			Author:    newUserBrief(&cm.Author),
			Body:      cm.Body,
			CreatedAt: cm.CreatedAt,
		})
	}
	util.Success(c, util.Response{"items": items})
}

func (h *ThreadHandler) PostComment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req postReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "body is empty")
		return
	}
	report, ok := h.loadReport(c)
	if !ok {
		return
	}

	comment := models.Comment{ReportID: report.ID, AuthorID: user.ID, Body: body}
	if err := h.DB.Create(&comment).Error; err != nil {
		internalError(c, err, "failed to add comment")
		return
	}
	util.Created(c, util.Response{"comment": threadEntryResp{
		ID:        comment.ID,
		ReportID:  comment.ReportID,
		Author:    newUserBrief(user),
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}})
}

// ---------- messages (reporter and staff) ----------

func (h *ThreadHandler) ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	report, ok := h.loadReport(c)
	if !ok {
		return
	}
	if !inThread(user, report) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "only the reporter and staff can read messages")
		return
	}

	var messages []models.Message
	if err := h.DB.Preload("Author.Role").
		Where("report_id = ?", report.ID).
		Order("created_at, id").
		Find(&messages).Error; err != nil {
		internalError(c, err, "failed to list messages")
		return
	}

	items := make([]threadEntryResp, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		items = append(items, threadEntryResp{
			ID:        m.ID,
			ReportID:  m.ReportID,
			Author:    h.messageAuthor(report, &m.Author, user),
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	util.Success(c, util.Response{"items": items})
}

func (h *ThreadHandler) PostMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req postReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "body is empty")
		return
	}
	report, ok := h.loadReport(c)
	if !ok {
		return
	}
	if !inThread(user, report) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "only the reporter and staff can write messages")
		return
	}

	msg := models.Message{ReportID: report.ID, AuthorID: user.ID, Body: body}
	if err := h.DB.Create(&msg).Error; err != nil {
		internalError(c, err, "failed to add message")
		return
	}

	recipients, err := h.recipients(report, user)
	if err != nil {
		logging.Err(err).Uint("report_id", report.ID).Msg("resolve message recipients")
	}
	if h.Events != nil && len(recipients) > 0 {
		ev := notify.MessagePosted{
			ReportID:   report.ID,
			Title:      report.Title,
			AuthorID:   user.ID,
			AuthorName: displayName(user),
			Recipients: recipients,
			Body:       body,
			At:         msg.CreatedAt,
		}
		if err := h.Events.PublishMessagePosted(c.Request.Context(), ev); err != nil {
			logging.Err(err).Uint("report_id", report.ID).Msg("publish message")
		}
	}

	util.Created(c, util.Response{"message": threadEntryResp{
		ID:        msg.ID,
		ReportID:  msg.ReportID,
		Author:    newUserBrief(user),
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}})
}

// recipients of a new message: the reporter when staff writes; otherwise the
// assigned maintainer and every staff member who already wrote.
func (h *ThreadHandler) recipients(report *models.Report, author *models.User) ([]uint, error) {
	if author.ID != report.ReporterID {
		return []uint{report.ReporterID}, nil
	}

	var ids []uint
	if report.ExternalMaintainerID != nil {
		ids = append(ids, *report.ExternalMaintainerID)
	}
	var staff []uint
	err := h.DB.Model(&models.Message{}).
		Where("report_id = ? AND author_id <> ?", report.ID, report.ReporterID).
		Distinct().
		Pluck("author_id", &staff).Error
	return append(ids, staff...), err
}

// messageAuthor hides the reporter of an anonymous report from other readers.
func (h *ThreadHandler) messageAuthor(report *models.Report, author, viewer *models.User) *userBrief {
	if author.ID == report.ReporterID && !canSeeReporter(report, viewer) {
		return nil
	}
	return newUserBrief(author)
}

func (h *ThreadHandler) loadReport(c *gin.Context) (*models.Report, bool) {
	id, err := util.ParseID(c, "id")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return nil, false
	}
	var report models.Report
	if err := h.DB.First(&report, id).Error; err != nil {
		notFoundOr(c, err, "report")
		return nil, false
	}
	return &report, true
}

func inThread(user *models.User, report *models.Report) bool {
	return user.ID == report.ReporterID || models.IsStaff(user.Role.Name)
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
