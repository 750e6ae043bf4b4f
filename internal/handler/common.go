package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/storage"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// currentUser returns the session user, answering 401 when there is none.
func currentUser(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "authentication required")
		return nil, false
	}
	return user, true
}

// internalError logs err and answers a generic 500.
func internalError(c *gin.Context, err error, msg string) {
	ev := logging.Err(err).Str("path", c.Request.URL.Path)
	if u := middleware.CurrentUser(c); u != nil {
		ev = ev.Uint("user_id", u.ID)
	}
	ev.Msg(msg)
	util.Error(c, http.StatusInternalServerError, util.CodeServerErr, msg)
}

// notFoundOr answers 404 for a missing row and 500 otherwise.
func notFoundOr(c *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, what+" not found")
		return
	}
	internalError(c, err, "failed to load "+what)
}

type officeResp struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsExternal  bool   `json:"is_external"`
}

func newOfficeResp(o *models.Office) *officeResp {
	if o == nil || o.ID == 0 {
		return nil
	}
	return &officeResp{ID: o.ID, Name: o.Name, Description: o.Description, IsExternal: o.IsExternal}
}

type roleResp struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	IsMunicipal bool   `json:"is_municipal"`
}

func newRoleResp(r models.Role) roleResp {
	return roleResp{ID: r.ID, Name: r.Name, Label: r.Label, IsMunicipal: r.IsMunicipal}
}

type userResp struct {
	ID                 uint        `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	FirstName          string      `json:"first_name"`
	LastName           string      `json:"last_name"`
	Role               string      `json:"role"`
	Office             *officeResp `json:"office"`
	EmailVerified      bool        `json:"email_verified"`
	EmailNotifications bool        `json:"email_notifications"`
	TelegramUsername   string      `json:"telegram_username,omitempty"`
	LastLoginAt        *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

func newUserResp(u *models.User) userResp {
	return userResp{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Role:               u.Role.Name,
		Office:             newOfficeResp(u.Office),
		EmailVerified:      u.EmailVerified,
		EmailNotifications: u.EmailNotifications,
		TelegramUsername:   u.TelegramUsername,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
	}
}

// userBrief is the public face of a user on reports and threads.
type userBrief struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"`
}

func newUserBrief(u *models.User) *userBrief {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &userBrief{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role.Name}
}

type photoResp struct {
	ID          uint   `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type categoryBrief struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type reportResp struct {
	ID                 uint          `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	Category           categoryBrief `json:"category"`
	Latitude           float64       `json:"latitude"`
	Longitude          float64       `json:"longitude"`
	Address            string        `json:"address,omitempty"`
	Status             string        `json:"status"`
	IsAnonymous        bool          `json:"is_anonymous"`
	Reporter           *userBrief    `json:"reporter"`
	AssignedOffice     *officeResp   `json:"assigned_office"`
	ExternalMaintainer *userBrief    `json:"external_maintainer"`
	RejectionReason    string        `json:"rejection_reason,omitempty"`
	Photos             []photoResp   `json:"photos"`
	DistanceMeters     *float64      `json:"distance_meters,omitempty"`
	ResolvedAt         *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// canSeeReporter reports whether viewer may learn who filed r.
func canSeeReporter(r *models.Report, viewer *models.User) bool {
	if !r.IsAnonymous {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == r.ReporterID || models.IsStaff(viewer.Role.Name)
}

func newReportResp(r *models.Report, viewer *models.User) reportResp {
	resp := reportResp{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Category:           categoryBrief{ID: r.Category.ID, Name: r.Category.Name},
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		Address:            r.Address,
		Status:             r.Status,
		IsAnonymous:        r.IsAnonymous,
		AssignedOffice:     newOfficeResp(r.AssignedOffice),
		ExternalMaintainer: newUserBrief(r.ExternalMaintainer),
		RejectionReason:    r.RejectionReason,
		Photos:             make([]photoResp, 0, len(r.Photos)),
		ResolvedAt:         r.ResolvedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if canSeeReporter(r, viewer) {
		resp.Reporter = newUserBrief(&r.Reporter)
	}
	for _, p := range r.Photos {
		resp.Photos = append(resp.Photos, photoResp{
			ID:          p.ID,
			URL:         storage.URL(p),
			ContentType: p.ContentType,
			Size:        p.Size,
		})
	}
	return resp
}

// preloadReport loads everything newReportResp renders.
func preloadReport(db *gorm.DB) *gorm.DB {
	return db.Preload("Category").
		Preload("Reporter.Role").
		Preload("AssignedOffice").
		Preload("ExternalMaintainer.Role").
		Preload("Photos", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") })
}
