package handler

import (
	"context"
	"errors"
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

type reviewReq struct {
	Action     string `json:"action" binding:"required,oneof=approve reject"`
	Reason     string `json:"reason" binding:"max=500"`
	CategoryID *uint  `json:"category_id"`
}

// ReviewReport approves a pending report, routing it to the office of its
// (possibly corrected) category, or rejects it with a reason.
func (h *ReportHandler) ReviewReport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	report, ok := h.loadForUpdate(c)
	if !ok {
		return
	}
	if report.Status != models.StatusPending {
		util.Error(c, http.StatusConflict, util.CodeConflict, "only pending reports can be reviewed")
		return
	}

	updates := map[string]interface{}{}
	var to string
	switch req.Action {
	case "approve":
		categoryID := report.CategoryID
		if req.CategoryID != nil {
			categoryID = *req.CategoryID
		}
		var category models.Category
		if err := h.DB.First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "unknown category")
				return
			}
			internalError(c, err, "failed to load category")
			return
		}
		to = models.StatusAssigned
		updates["category_id"] = category.ID
		updates["assigned_office_id"] = category.OfficeID
	case "reject":
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "a reason is required to reject a report")
			return
		}
		to = models.StatusRejected
		updates["rejection_reason"] = reason
	}

	h.transition(c, user, report, to, updates, req.Reason)
}

type assignReq struct {
	MaintainerID uint `json:"maintainer_id" binding:"required"`
}

// AssignMaintainer hands a report of the officer's office to an external maintainer.
func (h *ReportHandler) AssignMaintainer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	report, ok := h.loadForUpdate(c)
	if !ok {
		return
	}
	if !inOffice(user, report) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "report belongs to another office")
		return
	}
	if !isWorkStatus(report.Status) {
		util.Error(c, http.StatusConflict, util.CodeConflict, "report is not open for work")
		return
	}

	var maintainer models.User
	if err := h.DB.Preload("Role").Preload("Office").First(&maintainer, req.MaintainerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "unknown maintainer")
			return
		}
		internalError(c, err, "failed to load maintainer")
		return
	}
	if maintainer.Role.Name != models.RoleExternalMaintainer {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "user is not an external maintainer")
		return
	}

	if err := h.DB.Model(&models.Report{}).Where("id = ?", report.ID).
		Update("external_maintainer_id", maintainer.ID).Error; err != nil {
		internalError(c, err, "failed to assign maintainer")
		return
	}

	logging.Info().Uint("report_id", report.ID).Uint("maintainer_id", maintainer.ID).Uint("by", user.ID).Msg("maintainer assigned")
	h.respondReport(c, report.ID, user)
}

type statusReq struct {
	Status string `json:"status" binding:"required,reportstatus"`
}

// UpdateStatus moves a report along the resolution workflow. Technical staff
// act on their office's reports, maintainers on reports assigned to them.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	report, ok := h.loadForUpdate(c)
	if !ok {
		return
	}
	if !canWork(user, report) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "report is not assigned to you")
		return
	}
	if req.Status == models.StatusAssigned || req.Status == models.StatusRejected {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "use the review endpoint to approve or reject")
		return
	}
	if !models.CanTransition(report.Status, req.Status) {
		util.Error(c, http.StatusConflict, util.CodeConflict,
			"cannot move report from "+report.Status+" to "+req.Status)
		return
	}

	updates := map[string]interface{}{}
	if req.Status == models.StatusResolved {
		updates["resolved_at"] = time.Now()
	}
	h.transition(c, user, report, req.Status, updates, "")
}

// transition applies a status change guarded on the current status, then
// announces it.
func (h *ReportHandler) transition(c *gin.Context, user *models.User, report *models.Report, to string, updates map[string]interface{}, reason string) {
	from := report.Status
	updates["status"] = to

	res := h.DB.Model(&models.Report{}).
		Where("id = ? AND status = ?", report.ID, from).
		Updates(updates)
	if res.Error != nil {
		internalError(c, res.Error, "failed to update report")
		return
	}
	if res.RowsAffected == 0 {
		util.Error(c, http.StatusConflict, util.CodeConflict, "report status changed concurrently")
		return
	}

	h.Metrics.StatusChanged(to)
	logging.Info().
		Uint("report_id", report.ID).
		Str("from", from).
		Str("to", to).
		Uint("by", user.ID).
		Msg("report status changed")

	h.publishStatus(c.Request.Context(), notify.StatusChanged{
		ReportID:   report.ID,
		ReporterID: report.ReporterID,
		Title:      report.Title,
		From:       from,
		To:         to,
		ChangedBy:  user.ID,
		Reason:     strings.TrimSpace(reason),
		At:         time.Now(),
	})

	h.respondReport(c, report.ID, user)
}

func (h *ReportHandler) publishStatus(ctx context.Context, ev notify.StatusChanged) {
	if h.Events == nil {
		return
	}
	if err := h.Events.PublishStatusChanged(ctx, ev); err != nil {
		logging.Err(err).Uint("report_id", ev.ReportID).Msg("publish status change")
	}
}

func (h *ReportHandler) respondReport(c *gin.Context, id uint, viewer *models.User) {
	var report models.Report
	if err := preloadReport(h.DB).First(&report, id).Error; err != nil {
		internalError(c, err, "failed to load report")
		return
	}
	util.Success(c, util.Response{"report": newReportResp(&report, viewer)})
}

func (h *ReportHandler) loadForUpdate(c *gin.Context) (*models.Report, bool) {
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

func isWorkStatus(status string) bool {
	for _, s := range workStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// inOffice reports whether user belongs to the office handling r. Admins
// belong everywhere.
func inOffice(user *models.User, r *models.Report) bool {
	if user.Role.Name == models.RoleAdmin {
		return true
	}
	return user.OfficeID != nil && r.AssignedOfficeID != nil && *user.OfficeID == *r.AssignedOfficeID
}

// canWork reports whether user may change the resolution status of r.
func canWork(user *models.User, r *models.Report) bool {
	switch user.Role.Name {
	case models.RoleAdmin:
		return true
	case models.RoleTechOfficer:
		return inOffice(user, r)
	case models.RoleExternalMaintainer:
		return r.ExternalMaintainerID != nil && *r.ExternalMaintainerID == user.ID
	}
	return false
}
