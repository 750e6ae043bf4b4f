package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const exportSheet = "Reports"

var exportHeader = []string{
	"ID", "Title", "Category", "Status", "Latitude", "Longitude", "Address",
	"Reporter", "Office", "Maintainer", "Rejection reason", "Created at", "Resolved at",
}

// ExportHandler streams report exports for the public relations office.
type ExportHandler struct {
	DB *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{DB: db}
}

// ExportCSV writes the filtered reports as CSV with a UTF-8 BOM so
// spreadsheet tools pick the right encoding.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	reports, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", exportDisposition("csv"))
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		logging.Err(err).Msg("write csv export")
		return
	}
	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for i := range reports {
		_ = w.Write(csvSafe(exportRow(&reports[i])))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logging.Err(err).Msg("write csv export")
	}
}

func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	reports, ok := h.load(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		internalError(c, err, "failed to build export")
		return
	}
	if err := writeSheetRow(f, 1, exportHeader); err != nil {
		internalError(c, err, "failed to build export")
		return
	}
	for i := range reports {
		if err := writeSheetRow(f, i+2, exportRow(&reports[i])); err != nil {
			internalError(c, err, "failed to build export")
			return
		}
	}
	_ = f.SetColWidth(exportSheet, "B", "B", 40)
	_ = f.SetColWidth(exportSheet, "C", "C", 24)
	_ = f.SetColWidth(exportSheet, "G", "G", 32)
	_ = f.SetColWidth(exportSheet, "H", "K", 20)
	_ = f.SetColWidth(exportSheet, "L", "M", 20)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", exportDisposition("xlsx"))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logging.Err(err).Msg("write xlsx export")
	}
}

// load reads the reports to export. Filters: status, category_id and a
// start/end creation date range (YYYY-MM-DD, end inclusive).
func (h *ExportHandler) load(c *gin.Context) ([]models.Report, bool) {
	q := h.DB.Model(&models.Report{})
	if s := c.Query("status"); s != "" {
		if !models.IsValidStatus(s) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid status")
			return nil, false
		}
		q = q.Where("status = ?", s)
	}
	if s := c.Query("category_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid category_id")
			return nil, false
		}
		q = q.Where("category_id = ?", id)
	}
	if s := c.Query("start"); s != "" {
		start, err := util.ValidateDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid start date")
			return nil, false
		}
		q = q.Where("created_at >= ?", start)
	}
	if s := c.Query("end"); s != "" {
		end, err := util.ValidateDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid end date")
			return nil, false
		}
		q = q.Where("created_at < ?", end.Add(24*time.Hour))
	}

	var reports []models.Report
	if err := q.Preload("Category").
		Preload("Reporter").
		Preload("AssignedOffice").
		Preload("ExternalMaintainer").
		Order("created_at DESC, id DESC").
		Find(&reports).Error; err != nil {
		internalError(c, err, "failed to load reports")
		return nil, false
	}
	return reports, true
}

// csvSafe prefixes cells that a spreadsheet would evaluate as a formula.
// Numbers are left alone. XLSX cells are typed as strings and need no escaping.
func csvSafe(row []string) []string {
	for i, v := range row {
		if v == "" || !strings.ContainsRune("=+-@\t\r", rune(v[0])) {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			continue
		}
		row[i] = "'" + v
	}
	return row
}

// exportRow flattens a report. Exports leave the system, so anonymous
// reporters stay anonymous here too.
func exportRow(r *models.Report) []string {
	reporter := "anonymous"
	if !r.IsAnonymous {
		reporter = r.Reporter.Username
	}
	var office, maintainer, resolved string
	if r.AssignedOffice != nil {
		office = r.AssignedOffice.Name
	}
	if r.ExternalMaintainer != nil {
		maintainer = r.ExternalMaintainer.Username
	}
	if r.ResolvedAt != nil {
		resolved = r.ResolvedAt.Format(time.RFC3339)
	}
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		r.Title,
		r.Category.Name,
		r.Status,
		strconv.FormatFloat(r.Latitude, 'f', 6, 64),
		strconv.FormatFloat(r.Longitude, 'f', 6, 64),
		r.Address,
		reporter,
		office,
		maintainer,
		r.RejectionReason,
		r.CreatedAt.Format(time.RFC3339),
		resolved,
	}
}

func writeSheetRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(exportSheet, cell, &cells)
}

func exportDisposition(ext string) string {
	return fmt.Sprintf("attachment; filename=\"reports_%s.%s\"", time.Now().Format("20060102"), ext)
}
