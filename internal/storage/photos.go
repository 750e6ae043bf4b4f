// Package storage keeps report photos on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/MontelAle/participium-sub001/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmptyFile       = errors.New("photo is empty")
	ErrTooLarge        = errors.New("photo exceeds the maximum size")
	ErrUnsupportedType = errors.New("photo must be a JPEG, PNG or WebP image")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// PhotoStore writes photos below dir as reports/<reportID>/<uuid><ext>.
type PhotoStore struct {
	dir      string
	maxBytes int64
}

// NewPhotoStore creates dir when missing.
func NewPhotoStore(dir string, maxBytes int64) (*PhotoStore, error) {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &PhotoStore{dir: dir, maxBytes: maxBytes}, nil
}

// Dir is the root served under /uploads.
func (s *PhotoStore) Dir() string {
	return s.dir
}

// Save sniffs and stores one photo. The returned Photo has no ID yet.
func (s *PhotoStore) Save(reportID uint, r io.Reader) (*models.Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedTypes...) {
		return nil, ErrUnsupportedType
	}

	name := uuid.NewString() + mt.Extension()
	rel := path.Join("reports", strconv.FormatUint(uint64(reportID), 10), name)
	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write photo: %w", err)
	}

	return &models.Photo{
		ReportID:    reportID,
		FileName:    name,
		Path:        rel,
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

// Remove deletes stored photos, ignoring files that are already gone.
func (s *PhotoStore) Remove(photos ...*models.Photo) error {
	var errs []error
	for _, p := range photos {
		err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(p.Path)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// URL is the public path of a stored photo.
func URL(p models.Photo) string {
	return "/uploads/" + p.Path
}
