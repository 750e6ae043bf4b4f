package geo

import (
	"errors"
	"math"
)

// BBox is an axis-aligned latitude/longitude rectangle.
type BBox struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// ErrInvalidBBox reports inverted or out-of-range bounds.
var ErrInvalidBBox = errors.New("invalid bounding box")

// NewBBox validates and returns a bounding box.
func NewBBox(minLat, minLng, maxLat, maxLng float64) (BBox, error) {
	b := BBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
	if !ValidLatLng(minLat, minLng) || !ValidLatLng(maxLat, maxLng) || minLat > maxLat || minLng > maxLng {
		return BBox{}, ErrInvalidBBox
	}
	return b, nil
}

// Contains reports whether p lies inside or on the edge of b.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BBoxAround returns a box enclosing the circle of radiusMeters around center.
// It is a SQL prefilter; callers refine with HaversineMeters.
func BBoxAround(center Point, radiusMeters float64) BBox {
	dLat := radiusMeters / EarthRadiusMeters / degToRad
	cos := math.Cos(center.Lat * degToRad)
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(dLat/cos, 180)
	}
	return BBox{
		MinLat: math.Max(center.Lat-dLat, -90),
		MaxLat: math.Min(center.Lat+dLat, 90),
		MinLng: math.Max(center.Lng-dLng, -180),
		MaxLng: math.Min(center.Lng+dLng, 180),
	}
}

// ValidLatLng checks WGS84 ranges.
func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lng)
}
