package handler

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/MontelAle/participium-sub001/internal/geo"
	"github.com/MontelAle/participium-sub001/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxRadiusMeters = 50000

// reportFilter holds the optional query filters of report listings.
type reportFilter struct {
	Status     string
	CategoryID uint
	ReporterID uint
	BBox       *geo.BBox
	Center     *geo.Point
	Radius     float64
}

func parseReportFilter(c *gin.Context) (reportFilter, error) {
	var f reportFilter

	if s := c.Query("status"); s != "" {
		if !models.IsValidStatus(s) {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.Status = s
	}

	var err error
	if f.CategoryID, err = queryUint(c, "category_id"); err != nil {
		return f, err
	}
	if f.ReporterID, err = queryUint(c, "reporter_id"); err != nil {
		return f, err
	}

	bbox, err := queryFloats(c, "min_lat", "min_lng", "max_lat", "max_lng")
	if err != nil {
		return f, err
	}
	if bbox != nil {
		b, err := geo.NewBBox(bbox[0], bbox[1], bbox[2], bbox[3])
		if err != nil {
			return f, err
		}
		f.BBox = &b
	}

	circle, err := queryFloats(c, "lat", "lng", "radius")
	if err != nil {
		return f, err
	}
	if circle != nil {
		if !geo.ValidLatLng(circle[0], circle[1]) {
			return f, errors.New("lat/lng out of range")
		}
		if circle[2] <= 0 || circle[2] > maxRadiusMeters {
			return f, fmt.Errorf("radius must be between 0 and %d meters", maxRadiusMeters)
		}
		f.Center = &geo.Point{Lat: circle[0], Lng: circle[1]}
		f.Radius = circle[2]
	}
	return f, nil
}

// apply adds the SQL predicates. The radius filter contributes only its
// bounding box; matchesRadius does the exact check.
func (f reportFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("reports.status = ?", f.Status)
	}
	if f.CategoryID != 0 {
		q = q.Where("reports.category_id = ?", f.CategoryID)
	}
	if f.ReporterID != 0 {
		q = q.Where("reports.reporter_id = ?", f.ReporterID)
	}
	if f.BBox != nil {
		q = withinBBox(q, *f.BBox)
	}
	if f.Center != nil {
		q = withinBBox(q, geo.BBoxAround(*f.Center, f.Radius))
	}
	return q
}

func (f reportFilter) matchesRadius(r *models.Report) (float64, bool) {
	if f.Center == nil {
		return 0, true
	}
	d := geo.HaversineMeters(*f.Center, geo.Point{Lat: r.Latitude, Lng: r.Longitude})
	return d, d <= f.Radius
}

func withinBBox(q *gorm.DB, b geo.BBox) *gorm.DB {
	return q.Where("reports.latitude BETWEEN ? AND ? AND reports.longitude BETWEEN ? AND ?",
		b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
}

// visibleTo restricts reports to what viewer may see: everyone sees public
// statuses, citizens also their own reports, staff everything.
func visibleTo(q *gorm.DB, viewer *models.User) *gorm.DB {
	if viewer != nil && models.IsStaff(viewer.Role.Name) {
		return q
	}
	if viewer == nil {
		return q.Where("reports.status IN ?", models.PublicStatuses)
	}
	return q.Where("(reports.status IN ? OR reports.reporter_id = ?)", models.PublicStatuses, viewer.ID)
}

// canView is visibleTo for a single loaded report.
func canView(r *models.Report, viewer *models.User) bool {
	if models.IsPublicStatus(r.Status) {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == r.ReporterID || models.IsStaff(viewer.Role.Name)
}

func queryUint(c *gin.Context, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(v), nil
}

// queryFloats reads a group of parameters that must be given together.
// It returns nil when none is present.
func queryFloats(c *gin.Context, names ...string) ([]float64, error) {
	present := 0
	for _, n := range names {
		if c.Query(n) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(names) {
		return nil, fmt.Errorf("parameters %v must be given together", names)
	}

	out := make([]float64, len(names))
	for i, n := range names {
		v, err := strconv.ParseFloat(c.Query(n), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid %s", n)
		}
		out[i] = v
	}
	return out, nil
}
