// Package layers partitions stored features into the fixed, styled layers a
// map renderer consumes.
package layers

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/text/cases"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
)

const (
	Parks     = "Parks"
	Rivers    = "Rivers"
	Buildings = "Buildings"
)

// Names lists the layers in z-order.
var Names = []string{Parks, Rivers, Buildings}

// Classifier assigns a feature to exactly one of Names. It must be total and
// deterministic.
type Classifier interface {
	Name() string
	Classify(doc model.FeatureDocument) string
}

// GeometryKind maps point kinds to Parks, line kinds to Rivers and everything
// else to Buildings.
type GeometryKind struct{}

func (GeometryKind) Name() string { return "geometry" }

func (GeometryKind) Classify(doc model.FeatureDocument) string {
	g := doc.Geometry.Geometry()
	if g == nil {
		return Buildings
	}
	switch g.Coordinates.(type) {
	case orb.Point, orb.MultiPoint:
		return Parks
	case orb.LineString, orb.MultiLineString:
		return Rivers
	default:
		return Buildings
	}
}

// Keyword looks for "river" then "park" in the case-folded feature name.
type Keyword struct{}

func (Keyword) Name() string { return "keyword" }

func (Keyword) Classify(doc model.FeatureDocument) string {
	// Caser values carry state, so one per call
	name := cases.Fold().String(doc.Name)
	switch {
	case strings.Contains(name, "river"):
		return Rivers
	case strings.Contains(name, "park"):
		return Parks
	default:
		return Buildings
	}
}

// ParseStrategy returns the classifier configured by s. Empty selects the
// geometry-kind strategy.
func ParseStrategy(s string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "geometry", "geometry-kind", "kind":
		return GeometryKind{}, nil
	case "keyword", "name":
		return Keyword{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q (want geometry|keyword)", s)
	}
}
