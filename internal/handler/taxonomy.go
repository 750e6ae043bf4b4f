package handler

import (
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TaxonomyHandler serves offices and report categories.
type TaxonomyHandler struct {
	DB *gorm.DB
}

func NewTaxonomyHandler(db *gorm.DB) *TaxonomyHandler {
	return &TaxonomyHandler{DB: db}
}

func (h *TaxonomyHandler) ListOffices(c *gin.Context) {
	var offices []models.Office
	q := h.DB.Order("name")
	if c.Query("external") == "true" {
		q = q.Where("is_external = ?", true)
	}
	if err := q.Find(&offices).Error; err != nil {
		internalError(c, err, "failed to list offices")
		return
	}
	items := make([]*officeResp, 0, len(offices))
	for i := range offices {
		items = append(items, newOfficeResp(&offices[i]))
	}
	util.Success(c, util.Response{"items": items})
}

type categoryResp struct {
	ID     uint        `json:"id"`
	Name   string      `json:"name"`
	Office *officeResp `json:"office"`
}

func (h *TaxonomyHandler) ListCategories(c *gin.Context) {
	var cats []models.Category
	if err := h.DB.Preload("Office").Order("name").Find(&cats).Error; err != nil {
		internalError(c, err, "failed to list categories")
		return
	}
	items := make([]categoryResp, 0, len(cats))
	for i := range cats {
		items = append(items, categoryResp{
			ID:     cats[i].ID,
			Name:   cats[i].Name,
			Office: newOfficeResp(&cats[i].Office),
		})
	}
	util.Success(c, util.Response{"items": items})
}
