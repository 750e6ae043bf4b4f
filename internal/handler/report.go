package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MontelAle/participium-sub001/internal/geo"
	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/metrics"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/notify"
	"github.com/MontelAle/participium-sub001/internal/storage"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxMapPoints = 2000

// workStatuses are the statuses of reports someone is working on.
var workStatuses = []string{models.StatusAssigned, models.StatusInProgress, models.StatusSuspended}

// ReportOptions carries the report settings taken from configuration.
type ReportOptions struct {
	Boundary  geo.Polygon
	MaxPhotos int
	PageSize  int
}

// ReportHandler serves report submission, listings and the status workflow.
type ReportHandler struct {
	DB      *gorm.DB
	Photos  *storage.PhotoStore
	Events  notify.Publisher
	Metrics *metrics.Metrics
	Opts    ReportOptions

	// boundaryBox rejects far-away points before the polygon test.
	boundaryBox geo.BBox
}

func NewReportHandler(db *gorm.DB, photos *storage.PhotoStore, events notify.Publisher, m *metrics.Metrics, opts ReportOptions) *ReportHandler {
	if opts.MaxPhotos <= 0 {
		opts.MaxPhotos = 3
	}
	return &ReportHandler{
		DB:          db,
		Photos:      photos,
		Events:      events,
		Metrics:     m,
		Opts:        opts,
		boundaryBox: opts.Boundary.Bounds(),
	}
}

// ---------- create ----------

// insideBoundary reports whether p lies in the municipality. An empty
// boundary accepts everything.
func (h *ReportHandler) insideBoundary(p geo.Point) bool {
	if len(h.Opts.Boundary) == 0 {
		return true
	}
	return h.boundaryBox.Contains(p) && h.Opts.Boundary.Contains(p)
}

type createReportReq struct {
	Title       string   `form:"title" binding:"required,max=128"`
	Description string   `form:"description" binding:"required,max=2000"`
	CategoryID  uint     `form:"category_id" binding:"required"`
	Latitude    *float64 `form:"latitude" binding:"required,latitude"`
	Longitude   *float64 `form:"longitude" binding:"required,longitude"`
	Address     string   `form:"address" binding:"max=255"`
	IsAnonymous bool     `form:"is_anonymous"`
}

// CreateReport accepts a multipart form with one to MaxPhotos "photos" files.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createReportReq
	if err := c.ShouldBind(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "multipart form with photos is required")
		return
	}
	files := form.File["photos"]
	if len(files) < 1 || len(files) > h.Opts.MaxPhotos {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam,
			fmt.Sprintf("between 1 and %d photos are required", h.Opts.MaxPhotos))
		return
	}

	point := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	if !h.insideBoundary(point) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "location is outside the municipality")
		return
	}

	var category models.Category
	if err := h.DB.First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "unknown category")
			return
		}
		internalError(c, err, "failed to load category")
		return
	}

	report := models.Report{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		CategoryID:  category.ID,
		Latitude:    point.Lat,
		Longitude:   point.Lng,
		Address:     strings.TrimSpace(req.Address),
		Status:      models.StatusPending,
		IsAnonymous: req.IsAnonymous,
		ReporterID:  user.ID,
	}

	var saved []*models.Photo
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&report).Error; err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		for _, fh := range files {
			p, err := h.savePhoto(report.ID, fh)
			if err != nil {
				return err
			}
			saved = append(saved, p)
			if err := tx.Create(p).Error; err != nil {
				return fmt.Errorf("create photo: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if rmErr := h.Photos.Remove(saved...); rmErr != nil {
			logging.Err(rmErr).Msg("remove photos of failed report")
		}
		switch {
		case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupportedType):
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		default:
			internalError(c, err, "failed to create report")
		}
		return
	}

	h.Metrics.ReportCreated()
	logging.Info().Uint("report_id", report.ID).Uint("user_id", user.ID).Int("photos", len(saved)).Msg("report submitted")

	if err := preloadReport(h.DB).First(&report, report.ID).Error; err != nil {
		internalError(c, err, "failed to load report")
		return
	}
	util.Created(c, util.Response{"report": newReportResp(&report, user)})
}

func (h *ReportHandler) savePhoto(reportID uint, fh *multipart.FileHeader) (*models.Photo, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return h.Photos.Save(reportID, f)
}

// ---------- listings ----------

// ListReports lists reports visible to the caller, filtered and paged.
func (h *ReportHandler) ListReports(c *gin.Context) {
	viewer := middleware.CurrentUser(c)
	f, err := parseReportFilter(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if f.ReporterID != 0 && (viewer == nil || !models.IsStaff(viewer.Role.Name)) {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "reporter_id filter is reserved to staff")
		return
	}

	q := f.apply(visibleTo(h.DB.Model(&models.Report{}), viewer))
	h.respondPage(c, q, f, viewer)
}

// MyReports lists the caller's own reports in every status.
func (h *ReportHandler) MyReports(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	f, err := parseReportFilter(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	f.ReporterID = user.ID

	h.respondPage(c, f.apply(h.DB.Model(&models.Report{})), f, user)
}

// AssignedReports is the work queue of technical staff and maintainers.
func (h *ReportHandler) AssignedReports(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	f, err := parseReportFilter(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	q := h.DB.Model(&models.Report{})
	if f.Status == "" {
		q = q.Where("reports.status IN ?", workStatuses)
	} else {
		q = q.Where("reports.status IN ?", models.PublicStatuses)
	}

	switch user.Role.Name {
	case models.RoleTechOfficer:
		if user.OfficeID == nil {
			q = q.Where("1 = 0")
		} else {
			q = q.Where("reports.assigned_office_id = ?", *user.OfficeID)
		}
	case models.RoleExternalMaintainer:
		q = q.Where("reports.external_maintainer_id = ?", user.ID)
	}

	h.respondPage(c, f.apply(q), f, user)
}

// respondPage pages q. With a radius filter the candidates from the SQL
// bounding box are checked exactly and sorted nearest first.
func (h *ReportHandler) respondPage(c *gin.Context, q *gorm.DB, f reportFilter, viewer *models.User) {
	p := util.ParsePage(c, h.Opts.PageSize)

	var (
		reports   []models.Report
		total     int64
		distances map[uint]float64
	)

	if f.Center == nil {
		if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			internalError(c, err, "failed to count reports")
			return
		}
		if err := preloadReport(q).
			Order("reports.created_at DESC, reports.id DESC").
			Limit(p.Size).
			Offset(p.Offset).
			Find(&reports).Error; err != nil {
			internalError(c, err, "failed to list reports")
			return
		}
	} else {
		ids, dist, err := h.nearby(q, f)
		if err != nil {
			internalError(c, err, "failed to list reports")
			return
		}
		total = int64(len(ids))
		distances = dist

		page := pageOf(ids, p)
		if len(page) > 0 {
			if err := preloadReport(h.DB).Where("id IN ?", page).Find(&reports).Error; err != nil {
				internalError(c, err, "failed to list reports")
				return
			}
			orderByIDs(reports, page)
		}
	}

	items := make([]reportResp, 0, len(reports))
	for i := range reports {
		item := newReportResp(&reports[i], viewer)
		if d, ok := distances[reports[i].ID]; ok {
			item.DistanceMeters = &d
		}
		items = append(items, item)
	}
	util.Success(c, util.Response{
		"items": items,
		"total": total,
		"page":  p.Page,
		"size":  p.Size,
	})
}

type reportPoint struct {
	ID        uint
	Latitude  float64
	Longitude float64
}

// nearby returns the ids within the radius, nearest first, and their distances.
func (h *ReportHandler) nearby(q *gorm.DB, f reportFilter) ([]uint, map[uint]float64, error) {
	var pts []reportPoint
	if err := q.Select("reports.id, reports.latitude, reports.longitude").
		Order("reports.created_at DESC, reports.id DESC").
		Scan(&pts).Error; err != nil {
		return nil, nil, err
	}

	dist := make(map[uint]float64, len(pts))
	ids := make([]uint, 0, len(pts))
	for _, pt := range pts {
		d, ok := f.matchesRadius(&models.Report{Latitude: pt.Latitude, Longitude: pt.Longitude})
		if !ok {
			continue
		}
		dist[pt.ID] = d
		ids = append(ids, pt.ID)
	}
	sort.SliceStable(ids, func(i, j int) bool { return dist[ids[i]] < dist[ids[j]] })
	return ids, dist, nil
}

func pageOf(ids []uint, p util.Page) []uint {
	if p.Offset >= len(ids) {
		return nil
	}
	end := p.Offset + p.Size
	if end > len(ids) {
		end = len(ids)
	}
	return ids[p.Offset:end]
}

func orderByIDs(reports []models.Report, ids []uint) {
	pos := make(map[uint]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.Slice(reports, func(i, j int) bool { return pos[reports[i].ID] < pos[reports[j].ID] })
}

type mapPointResp struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	CategoryID uint      `json:"category_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CreatedAt  time.Time `json:"created_at"`
}

// MapReports returns lightweight points of public reports for the map.
func (h *ReportHandler) MapReports(c *gin.Context) {
	f, err := parseReportFilter(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	f.ReporterID = 0

	var reports []models.Report
	if err := f.apply(h.DB.Model(&models.Report{}).Where("reports.status IN ?", models.PublicStatuses)).
		Order("reports.created_at DESC").
		Limit(maxMapPoints).
		Find(&reports).Error; err != nil {
		internalError(c, err, "failed to load map")
		return
	}

	items := make([]mapPointResp, 0, len(reports))
	for i := range reports {
		r := &reports[i]
		if _, ok := f.matchesRadius(r); !ok {
			continue
		}
		items = append(items, mapPointResp{
			ID:         r.ID,
			Title:      r.Title,
			Status:     r.Status,
			CategoryID: r.CategoryID,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			CreatedAt:  r.CreatedAt,
		})
	}
	util.Success(c, util.Response{"items": items})
}

// GetReport returns one report. Reports the caller may not see are reported
// as missing.
func (h *ReportHandler) GetReport(c *gin.Context) {
	report, ok := h.loadVisible(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{"report": newReportResp(report, middleware.CurrentUser(c))})
}

func (h *ReportHandler) loadVisible(c *gin.Context) (*models.Report, bool) {
	id, err := util.ParseID(c, "id")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return nil, false
	}

	var report models.Report
	if err := preloadReport(h.DB).First(&report, id).Error; err != nil {
		notFoundOr(c, err, "report")
		return nil, false
	}
	if !canView(&report, middleware.CurrentUser(c)) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "report not found")
		return nil, false
	}
	return &report, true
}
