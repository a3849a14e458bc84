package layers

import (
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/observability"
)

// DefaultZoom is the zoom of the default view.
const DefaultZoom = 2

type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      float64 `json:"weight"`
	FillOpacity float64 `json:"fillOpacity"`
}

// DefaultStyles holds the fixed style of each layer.
var DefaultStyles = map[string]Style{
	Parks:     {Color: "#2e7d32", FillColor: "#a5d6a7", Weight: 2, FillOpacity: 0.6},
	Rivers:    {Color: "#1565c0", FillColor: "#90caf9", Weight: 3, FillOpacity: 0.4},
	Buildings: {Color: "#616161", FillColor: "#bdbdbd", Weight: 1, FillOpacity: 0.5},
}

type Popup struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Data        []model.DataEntry `json:"data,omitempty"`
}

// Feature references one stored document inside a layer.
type Feature struct {
	ID       string            `json:"id,omitempty"`
	Geometry *geojson.Geometry `json:"geometry"`
	Popup    Popup             `json:"popup"`
	Tooltip  string            `json:"tooltip"`
}

type Layer struct {
	Name     string    `json:"name"`
	Features []Feature `json:"features"`
	Style    Style     `json:"style"`
	Visible  bool      `json:"visible"`
	ZIndex   int       `json:"zIndex"`
}

// FeatureCollection exports the layer as GeoJSON. Popup fields become
// feature properties.
func (l Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range l.Features {
		gf := geojson.NewFeature(f.Geometry.Coordinates)
		if f.ID != "" {
			gf.ID = f.ID
		}
		gf.Properties["name"] = f.Popup.Name
		gf.Properties["layer"] = l.Name
		if f.Popup.Description != "" {
			gf.Properties["description"] = f.Popup.Description
		}
		if len(f.Popup.Data) > 0 {
			gf.Properties["data"] = f.Popup.Data
		}
		fc.Append(gf)
	}
	return fc
}

// Control is the layer toggle handed to the renderer.
type Control struct {
	Layers    []string `json:"layers"`
	Collapsed bool     `json:"collapsed"`
}

type View struct {
	Center orb.Point `json:"center"`
	Zoom   int       `json:"zoom"`
}

type LayeredMap struct {
	Layers  []Layer `json:"layers"`
	Control Control `json:"control"`
	View    View    `json:"view"`
}

func (m LayeredMap) Layer(name string) (Layer, bool) {
	for _, l := range m.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// FeatureCount is the number of features across all layers.
func (m LayeredMap) FeatureCount() int {
	n := 0
	for _, l := range m.Layers {
		n += len(l.Features)
	}
	return n
}

type Builder struct {
	classifier Classifier
	logger     *slog.Logger
}

type Option func(*Builder)

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func NewBuilder(c Classifier, opts ...Option) *Builder {
	if c == nil {
		c = GeometryKind{}
	}
	b := &Builder{classifier: c, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) Classifier() Classifier { return b.classifier }

// Build partitions features into Names. Features without coordinates land in
// no layer; every other feature lands in exactly one.
func (b *Builder) Build(features []model.FeatureDocument) LayeredMap {
	byName := make(map[string]*Layer, len(Names))
	out := LayeredMap{
		Layers:  make([]Layer, len(Names)),
		Control: Control{Layers: append([]string(nil), Names...)},
		View:    View{Center: orb.Point{0, 0}, Zoom: DefaultZoom},
	}
	for i, name := range Names {
		out.Layers[i] = Layer{Name: name, Style: DefaultStyles[name], Visible: true, ZIndex: i}
		byName[name] = &out.Layers[i]
	}

	var (
		bound    orb.Bound
		haveView bool
		skipped  int
	)
	for _, doc := range features {
		g := doc.Geometry.Geometry()
		if g == nil || !hasCoordinates(g.Coordinates) {
			skipped++
			continue
		}
		name := b.classifier.Classify(doc)
		l, ok := byName[name]
		if !ok {
			l = byName[Buildings]
		}
		l.Features = append(l.Features, Feature{
			ID:       doc.ID,
			Geometry: g,
			Popup:    Popup{Name: doc.Name, Description: doc.Description, Data: doc.Data},
			Tooltip:  doc.Name,
		})

		gb := g.Coordinates.Bound()
		if !haveView {
			bound, haveView = gb, true
		} else {
			bound = bound.Union(gb)
		}
	}
	if haveView {
		out.View.Center = bound.Center()
	}

	for _, l := range out.Layers {
		observability.SetLayerFeatures(l.Name, len(l.Features))
	}
	if skipped > 0 {
		b.logger.Debug("features without coordinates skipped", "count", skipped, "classifier", b.classifier.Name())
	}
	return out
}

func hasCoordinates(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return false
	case orb.Point:
		return true
	case orb.MultiPoint:
		return len(v) > 0
	case orb.LineString:
		return len(v) > 0
	case orb.MultiLineString:
		return len(v) > 0
	case orb.Polygon:
		return len(v) > 0 && len(v[0]) > 0
	case orb.MultiPolygon:
		return len(v) > 0
	default:
		return false
	}
}
