package ogc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	ErrEmptyGeometry   = errors.New("empty or degenerate geometry")
	ErrUnsupportedKind = errors.New("unsupported geometry kind")
	ErrInvalidGeoJSON  = errors.New("invalid geojson geometry")
)

// ParseWKT parses a 2D WKT literal into an orb geometry. Only the six simple
// kinds are accepted; Z/M ordinates are read and dropped.
func ParseWKT(s string) (orb.Geometry, error) {
	p := &wktParser{toks: tokenize(s)}
	if len(p.toks) == 0 {
		return nil, ErrEmptyGeometry
	}
	if p.peek().kind == tokError {
		return nil, fmt.Errorf("wkt: unexpected character %q", p.peek().text)
	}

	kind, err := p.keyword()
	if err != nil {
		return nil, err
	}
	p.skipDimension()

	if p.peek().kind == tokWord && strings.EqualFold(p.peek().text, "EMPTY") {
		return nil, ErrEmptyGeometry
	}

	var g orb.Geometry
	switch kind {
	case "POINT":
		g, err = p.point()
	case "LINESTRING":
		g, err = p.lineString()
	case "POLYGON":
		g, err = p.polygon()
	case "MULTIPOINT":
		g, err = p.multiPoint()
	case "MULTILINESTRING":
		g, err = p.multiLineString()
	case "MULTIPOLYGON":
		g, err = p.multiPolygon()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("wkt: trailing input %q", t.text)
	}
	return g, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokWord
	tokNumber
	tokOpen
	tokClose
	tokComma
	tokError
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) []token {
	var out []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			out = append(out, token{tokOpen, "("})
			i++
		case c == ')':
			out = append(out, token{tokClose, ")"})
			i++
		case c == ',':
			out = append(out, token{tokComma, ","})
			i++
		case isLetter(c):
			j := i
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			out = append(out, token{tokWord, s[i:j]})
			i = j
		case isNumberStart(c):
			j := i + 1
			for j < len(s) && isNumberPart(s[j], s[j-1]) {
				j++
			}
			out = append(out, token{tokNumber, s[i:j]})
			i = j
		default:
			return append(out, token{tokError, string(c)})
		}
	}
	return out
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isNumberStart(c byte) bool { return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' }

func isNumberPart(c, prev byte) bool {
	switch {
	case c >= '0' && c <= '9', c == '.':
		return true
	case c == 'e' || c == 'E':
		return true
	case (c == '-' || c == '+') && (prev == 'e' || prev == 'E'):
		return true
	}
	return false
}

type wktParser struct {
	toks []token
	pos  int
}

func (p *wktParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *wktParser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *wktParser) expect(k tokKind, what string) error {
	t := p.next()
	if t.kind != k {
		if t.kind == tokEOF {
			return fmt.Errorf("wkt: expected %s, got end of input", what)
		}
		return fmt.Errorf("wkt: expected %s, got %q", what, t.text)
	}
	return nil
}

func (p *wktParser) keyword() (string, error) {
	t := p.next()
	if t.kind != tokWord {
		return "", fmt.Errorf("wkt: expected geometry keyword, got %q", t.text)
	}
	return strings.ToUpper(t.text), nil
}

// consumes an optional Z, M or ZM dimension tag
func (p *wktParser) skipDimension() {
	t := p.peek()
	if t.kind != tokWord {
		return
	}
	switch strings.ToUpper(t.text) {
	case "Z", "M", "ZM":
		p.pos++
	}
}

// position reads 2 to 4 ordinates and keeps x, y
func (p *wktParser) position() (orb.Point, error) {
	var ords []float64
	for p.peek().kind == tokNumber {
		t := p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Point{}, fmt.Errorf("wkt: invalid number %q", t.text)
		}
		ords = append(ords, f)
	}
	if len(ords) < 2 || len(ords) > 4 {
		return orb.Point{}, fmt.Errorf("wkt: position needs 2-4 ordinates, got %d", len(ords))
	}
	return orb.Point{ords[0], ords[1]}, nil
}

// list parses "( item, item, ... )" calling item for every element.
func (p *wktParser) list(item func() error) error {
	if err := p.expect(tokOpen, "'('"); err != nil {
		return err
	}
	for {
		if err := item(); err != nil {
			return err
		}
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokClose:
			return nil
		case tokEOF:
			return errors.New("wkt: unbalanced parentheses")
		default:
			return fmt.Errorf("wkt: expected ',' or ')', got %q", t.text)
		}
	}
}

func (p *wktParser) positions() ([]orb.Point, error) {
	var pts []orb.Point
	err := p.list(func() error {
		pt, err := p.position()
		if err != nil {
			return err
		}
		pts = append(pts, pt)
		return nil
	})
	return pts, err
}

func (p *wktParser) point() (orb.Geometry, error) {
	pts, err := p.positions()
	if err != nil {
		return nil, err
	}
	if len(pts) != 1 {
		return nil, fmt.Errorf("wkt: point has %d positions", len(pts))
	}
	return pts[0], nil
}

func (p *wktParser) lineStringBody() (orb.LineString, error) {
	pts, err := p.positions()
	if err != nil {
		return nil, err
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: linestring needs at least 2 positions", ErrEmptyGeometry)
	}
	if distinct(pts) < 2 {
		return nil, fmt.Errorf("%w: linestring has zero length", ErrEmptyGeometry)
	}
	return orb.LineString(pts), nil
}

func (p *wktParser) lineString() (orb.Geometry, error) {
	return p.lineStringBody()
}

func (p *wktParser) polygonBody() (orb.Polygon, error) {
	var poly orb.Polygon
	err := p.list(func() error {
		pts, err := p.positions()
		if err != nil {
			return err
		}
		if len(pts) < 4 {
			return fmt.Errorf("%w: ring has %d positions (<4)", ErrEmptyGeometry, len(pts))
		}
		if pts[0] != pts[len(pts)-1] {
			return errors.New("wkt: ring is not closed")
		}
		ring := orb.Ring(pts)
		if distinct(pts) < 3 || planar.Area(ring) == 0 {
			return fmt.Errorf("%w: ring encloses no area", ErrEmptyGeometry)
		}
		poly = append(poly, ring)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return poly, nil
}

func distinct(pts []orb.Point) int {
	seen := make(map[orb.Point]struct{}, len(pts))
	for _, pt := range pts {
		seen[pt] = struct{}{}
	}
	return len(seen)
}

func (p *wktParser) polygon() (orb.Geometry, error) {
	return p.polygonBody()
}

// multiPoint accepts both "MULTIPOINT ((1 2), (3 4))" and "MULTIPOINT (1 2, 3 4)".
func (p *wktParser) multiPoint() (orb.Geometry, error) {
	var mp orb.MultiPoint
	err := p.list(func() error {
		if p.peek().kind == tokOpen {
			pts, err := p.positions()
			if err != nil {
				return err
			}
			if len(pts) != 1 {
				return fmt.Errorf("wkt: multipoint member has %d positions", len(pts))
			}
			mp = append(mp, pts[0])
			return nil
		}
		pt, err := p.position()
		if err != nil {
			return err
		}
		mp = append(mp, pt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mp, nil
}

func (p *wktParser) multiLineString() (orb.Geometry, error) {
	var mls orb.MultiLineString
	err := p.list(func() error {
		ls, err := p.lineStringBody()
		if err != nil {
			return err
		}
		mls = append(mls, ls)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mls, nil
}

func (p *wktParser) multiPolygon() (orb.Geometry, error) {
	var mp orb.MultiPolygon
	err := p.list(func() error {
		poly, err := p.polygonBody()
		if err != nil {
			return err
		}
		mp = append(mp, poly)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mp, nil
}
