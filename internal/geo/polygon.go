package geo

import "fmt"

// Polygon is a closed ring of vertices; the last vertex connects to the first.
type Polygon []Point

// PolygonFromPairs builds a polygon from [lat, lng] pairs.
func PolygonFromPairs(pairs [][]float64) (Polygon, error) {
	if len(pairs) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(pairs))
	}
	poly := make(Polygon, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 || !ValidLatLng(p[0], p[1]) {
			return nil, fmt.Errorf("invalid vertex %d: %v", i, p)
		}
		poly = append(poly, Point{Lat: p[0], Lng: p[1]})
	}
	return poly, nil
}

// Contains uses ray casting along the longitude axis. Points exactly on an
// edge may fall either way.
func (poly Polygon) Contains(p Point) bool {
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lng < (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			inside = !inside
		}
	}
	return inside
}

// Bounds returns the smallest box containing the polygon.
func (poly Polygon) Bounds() BBox {
	if len(poly) == 0 {
		return BBox{}
	}
	b := BBox{MinLat: poly[0].Lat, MaxLat: poly[0].Lat, MinLng: poly[0].Lng, MaxLng: poly[0].Lng}
	for _, p := range poly[1:] {
		b.MinLat = min(b.MinLat, p.Lat)
		b.MaxLat = max(b.MaxLat, p.Lat)
		b.MinLng = min(b.MinLng, p.Lng)
		b.MaxLng = max(b.MaxLng, p.Lng)
	}
	return b
}
