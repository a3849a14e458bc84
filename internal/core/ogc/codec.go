// Package ogc holds the OGC encodings the pipeline speaks: WKT literals from
// GeoSPARQL endpoints, GeoJSON for storage and rendering, and the query
// parameters sent to a SPARQL endpoint.
package ogc

import (
	"errors"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	KindPoint           = "Point"
	KindLineString      = "LineString"
	KindPolygon         = "Polygon"
	KindMultiPoint      = "MultiPoint"
	KindMultiLineString = "MultiLineString"
	KindMultiPolygon    = "MultiPolygon"
)

// SupportedKind reports whether t is one of the six GeoJSON geometry tags we
// persist.
func SupportedKind(t string) bool {
	switch t {
	case KindPoint, KindLineString, KindPolygon,
		KindMultiPoint, KindMultiLineString, KindMultiPolygon:
		return true
	}
	return false
}

// StripCRS removes a leading "<crs-uri>" (GeoSPARQL wktLiteral) or
// "SRID=n;" (EWKT) prefix. Input without a prefix comes back trimmed.
func StripCRS(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		if i := strings.Index(s, ">"); i >= 0 {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	if len(s) > 5 && strings.EqualFold(s[:5], "SRID=") {
		if i := strings.Index(s, ";"); i >= 0 {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	return s
}

// Decode parses a WKT literal. It returns nil on any failure; callers treat
// nil as "no geometry".
func Decode(literal string) orb.Geometry {
	g, err := DecodeErr(literal)
	if err != nil {
		return nil
	}
	return g
}

// DecodeErr is Decode with the failure reason kept, for logging.
func DecodeErr(literal string) (g orb.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, ErrEmptyGeometry
		}
	}()
	return ParseWKT(StripCRS(literal))
}

// Encode wraps g as a GeoJSON geometry. Coordinates keep the WKT X,Y order,
// i.e. [longitude, latitude] for geographic data.
func Encode(g orb.Geometry) *geojson.Geometry {
	if g == nil {
		return nil
	}
	return geojson.NewGeometry(g)
}

// DecodeGeoJSON is Decode followed by Encode.
func DecodeGeoJSON(literal string) *geojson.Geometry {
	return Encode(Decode(literal))
}

// DecodeGeoJSONErr is DecodeGeoJSON with the failure reason kept.
func DecodeGeoJSONErr(literal string) (*geojson.Geometry, error) {
	g, err := DecodeErr(literal)
	if err != nil {
		return nil, err
	}
	return Encode(g), nil
}

// FailureReason maps a decode error to a short metric label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, ErrEmptyGeometry):
		return "empty"
	case errors.Is(err, ErrUnsupportedKind):
		return "unsupported_kind"
	case errors.Is(err, ErrInvalidGeoJSON):
		return "invalid_geojson"
	default:
		return "syntax"
	}
}

// Codec is the stateless GeometryDecoder used when no cache is configured.
type Codec struct{}

func (Codec) DecodeGeoJSON(literal string) (*geojson.Geometry, error) {
	return DecodeGeoJSONErr(literal)
}
