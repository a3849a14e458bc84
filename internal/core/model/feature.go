package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

type GeometryState int

const (
	GeometryAbsent GeometryState = iota
	GeometryValid
	GeometryInvalid
)

func (s GeometryState) String() string {
	switch s {
	case GeometryValid:
		return "valid"
	case GeometryInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// GeometryField is absent, valid (decoded and accepted by ogc.IsValid) or
// invalid. An invalid field keeps the raw source text in memory only; it is
// never serialized.
type GeometryField struct {
	state GeometryState
	geom  *geojson.Geometry
	raw   string
	err   error
}

func NoGeometry() GeometryField { return GeometryField{} }

// ValidGeometry wraps g, downgrading to an invalid field when g does not pass
// the structural check.
func ValidGeometry(g *geojson.Geometry) GeometryField {
	if !ogc.IsValid(g) {
		return GeometryField{state: GeometryInvalid, err: ogc.ErrInvalidGeoJSON}
	}
	return GeometryField{state: GeometryValid, geom: g}
}

func InvalidGeometry(raw string) GeometryField {
	return GeometryField{state: GeometryInvalid, raw: raw}
}

// InvalidGeometryErr is InvalidGeometry keeping why the decode failed.
func InvalidGeometryErr(raw string, err error) GeometryField {
	return GeometryField{state: GeometryInvalid, raw: raw, err: err}
}

func (f GeometryField) State() GeometryState { return f.state }
func (f GeometryField) Present() bool        { return f.state != GeometryAbsent }
func (f GeometryField) Valid() bool          { return f.state == GeometryValid }
func (f GeometryField) Raw() string          { return f.raw }
func (f GeometryField) Err() error           { return f.err }

// Geometry returns the decoded value, or nil unless the field is valid.
func (f GeometryField) Geometry() *geojson.Geometry {
	if f.state != GeometryValid {
		return nil
	}
	return f.geom
}

type Colors struct {
	Boundary   string `json:"boundary,omitempty"`
	Fill       string `json:"fill,omitempty"`
	PointImage string `json:"pointImage,omitempty"`
}

func (c Colors) IsZero() bool { return c == Colors{} }

type DataEntry struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Type        string `json:"type,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// FeatureDocument is the canonical persisted unit. Properties holds fields
// the schema did not route to a typed attribute; they are flattened into the
// top level of the stored document.
type FeatureDocument struct {
	ID             string
	Name           string
	Description    string
	Geometry       GeometryField
	Colors         Colors
	SourceEndpoint string
	RetrievalQuery string
	Data           []DataEntry
	CreatedDate    time.Time
	LastUpdated    time.Time
	Layers         []string
	Maps           []string
	Properties     map[string]any
}

// WithoutGeometry returns a copy whose geometry is absent.
func (d FeatureDocument) WithoutGeometry() FeatureDocument {
	d.Geometry = NoGeometry()
	return d
}

var reservedKeys = map[string]struct{}{
	"id": {}, "_id": {}, "name": {}, "description": {}, "geometry": {}, "colors": {},
	"sourceEndpoint": {}, "retrievalQuery": {}, "data": {}, "createdDate": {},
	"lastUpdated": {}, "layers": {}, "maps": {},
}

// IsReservedKey reports whether k names a typed FeatureDocument attribute.
func IsReservedKey(k string) bool {
	_, ok := reservedKeys[k]
	return ok
}

type featureWire struct {
	ID             string            `json:"id,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Geometry       *geojson.Geometry `json:"geometry,omitempty"`
	Colors         *Colors           `json:"colors,omitempty"`
	SourceEndpoint string            `json:"sourceEndpoint,omitempty"`
	RetrievalQuery string            `json:"retrievalQuery"`
	Data           []DataEntry       `json:"data,omitempty"`
	CreatedDate    time.Time         `json:"createdDate"`
	LastUpdated    time.Time         `json:"lastUpdated"`
	Layers         []string          `json:"layers,omitempty"`
	Maps           []string          `json:"maps,omitempty"`
}

func (d FeatureDocument) MarshalJSON() ([]byte, error) {
	w := featureWire{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Geometry:       d.Geometry.Geometry(),
		SourceEndpoint: d.SourceEndpoint,
		RetrievalQuery: d.RetrievalQuery,
		Data:           d.Data,
		CreatedDate:    d.CreatedDate,
		LastUpdated:    d.LastUpdated,
		Layers:         d.Layers,
		Maps:           d.Maps,
	}
	if !d.Colors.IsZero() {
		c := d.Colors
		w.Colors = &c
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal feature: %w", err)
	}
	if len(d.Properties) == 0 {
		return b, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return nil, fmt.Errorf("flatten feature: %w", err)
	}
	for k, v := range d.Properties {
		if IsReservedKey(k) {
			continue
		}
		pv, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal property %q: %w", k, err)
		}
		flat[k] = pv
	}
	return json.Marshal(flat)
}

func (d *FeatureDocument) UnmarshalJSON(b []byte) error {
	var w struct {
		featureWire
		Geometry json.RawMessage `json:"geometry,omitempty"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("unmarshal feature: %w", err)
	}

	out := FeatureDocument{
		ID:             w.ID,
		Name:           w.Name,
		Description:    w.Description,
		SourceEndpoint: w.SourceEndpoint,
		RetrievalQuery: w.RetrievalQuery,
		Data:           w.Data,
		CreatedDate:    w.CreatedDate,
		LastUpdated:    w.LastUpdated,
		Layers:         w.Layers,
		Maps:           w.Maps,
	}
	if w.Colors != nil {
		out.Colors = *w.Colors
	}

	raw := bytes.TrimSpace(w.Geometry)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		out.Geometry = NoGeometry()
	case ogc.IsValid(json.RawMessage(raw)):
		var g geojson.Geometry
		if err := json.Unmarshal(raw, &g); err != nil {
			out.Geometry = InvalidGeometry(string(raw))
		} else {
			out.Geometry = ValidGeometry(&g)
		}
	default:
		out.Geometry = InvalidGeometry(string(raw))
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("unmarshal feature properties: %w", err)
	}
	for k, v := range flat {
		if IsReservedKey(k) {
			continue
		}
		var pv any
		if err := json.Unmarshal(v, &pv); err != nil {
			return fmt.Errorf("unmarshal property %q: %w", k, err)
		}
		if out.Properties == nil {
			out.Properties = map[string]any{}
		}
		out.Properties[k] = pv
	}

	*d = out
	return nil
}
