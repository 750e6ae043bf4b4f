package util

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Page is a parsed page/page_size pair.
type Page struct {
	Page   int
	Size   int
	Offset int
}

// ParsePage reads page and page_size, clamping size to 1..100.
func ParsePage(c *gin.Context, defaultSize int) Page {
	if defaultSize <= 0 || defaultSize > 100 {
		defaultSize = 20
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(c.Query("page_size"))
	if size <= 0 || size > 100 {
		size = defaultSize
	}
	return Page{Page: page, Size: size, Offset: (page - 1) * size}
}

// ValidateDate checks a YYYY-MM-DD date and returns it.
func ValidateDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return t, nil
}

// ParseID parses a positive numeric path parameter.
func ParseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}
