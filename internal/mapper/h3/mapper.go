package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// polygons whose bound is wider or taller than this are indexed by their
// vertices and center instead of a full polyfill
const maxFillSpanDeg = 0.5

var ErrNoCells = errors.New("geometry maps to no cells")

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell holding p, read as [lng, lat].
func (m *Mapper) CellForPoint(p orb.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if !validLatLng(p) {
		return "", fmt.Errorf("point %v outside lat/lng range", p)
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p[1], Lng: p[0]}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

func (m *Mapper) CellsForGeometry(g orb.Geometry, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNoCells
	}

	set := map[string]struct{}{}
	addPoint := func(p orb.Point) error {
		c, err := m.CellForPoint(p, res)
		if err != nil {
			return err
		}
		set[c] = struct{}{}
		return nil
	}

	var err error
	switch v := g.(type) {
	case orb.Point:
		err = addPoint(v)
	case orb.MultiPoint:
		err = eachPoint(v, addPoint)
	case orb.LineString:
		err = eachPoint(v, addPoint)
	case orb.MultiLineString:
		for _, ls := range v {
			if err = eachPoint(ls, addPoint); err != nil {
				break
			}
		}
	case orb.Polygon:
		err = m.addPolygon(set, v, res, addPoint)
	case orb.MultiPolygon:
		for _, p := range v {
			if err = m.addPolygon(set, p, res, addPoint); err != nil {
				break
			}
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.GeoJSONType())
	}
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, ErrNoCells
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mapper) addPolygon(set map[string]struct{}, p orb.Polygon, res int, addPoint func(orb.Point) error) error {
	if len(p) == 0 {
		return ErrNoCells
	}
	b := p.Bound()
	if err := addPoint(b.Center()); err != nil {
		return err
	}
	if b.Right()-b.Left() > maxFillSpanDeg || b.Top()-b.Bottom() > maxFillSpanDeg {
		return eachPoint(p[0], addPoint)
	}

	outer := toLoop(p[0])
	if len(outer) < 3 {
		return eachPoint(p[0], addPoint)
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		if h := toLoop(p[i]); len(h) >= 3 {
			holes = append(holes, h)
		}
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
	if err != nil {
		return fmt.Errorf("h3 polyfill: %w", err)
	}
	for _, c := range cells {
		set[c.String()] = struct{}{}
	}
	return nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func validLatLng(p orb.Point) bool {
	lng, lat := p[0], p[1]
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func eachPoint[S ~[]orb.Point](pts S, fn func(orb.Point) error) error {
	for _, p := range pts {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// Convert a ring to an h3.GeoLoop, dropping the closing vertex.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		last, first := loop[len(loop)-1], loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
