// Package schema maps raw SPARQL result rows onto FeatureDocuments using a
// configured SchemaMapping.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

// Canonical field names with a typed home on FeatureDocument.
const (
	FieldName           = "name"
	FieldDescription    = "description"
	FieldGeometry       = "geometry"
	FieldBoundaryColor  = "boundaryColor"
	FieldFillColor      = "fillColor"
	FieldPointImage     = "pointImage"
	FieldSourceEndpoint = "sourceEndpoint"
	FieldCreatedDate    = "createdDate"
	FieldLastUpdated    = "lastUpdated"

	dataPrefix = "data."
	typeSuffix = "_type"

	geoJSONLiteral = "http://www.opengis.net/ont/geosparql#geoJSONLiteral"
)

type UnmappedPolicy int

const (
	// Passthrough keeps unmapped fields under their original key.
	Passthrough UnmappedPolicy = iota
	// DropUnmapped keeps only fields named in the mapping.
	DropUnmapped
)

func (p UnmappedPolicy) String() string {
	if p == DropUnmapped {
		return "drop"
	}
	return "passthrough"
}

func ParseUnmappedPolicy(s string) (UnmappedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "passthrough", "identity":
		return Passthrough, nil
	case "drop":
		return DropUnmapped, nil
	default:
		return Passthrough, fmt.Errorf("unknown unmapped policy %q", s)
	}
}

// GeometryDecoder turns a WKT literal into GeoJSON, or returns why it cannot.
type GeometryDecoder interface {
	DecodeGeoJSON(literal string) (*geojson.Geometry, error)
}

type Mapper struct {
	mapping  model.SchemaMapping
	decoder  GeometryDecoder
	unmapped UnmappedPolicy
	endpoint string
	now      func() time.Time
}

type Option func(*Mapper)

func WithDecoder(d GeometryDecoder) Option { return func(m *Mapper) { m.decoder = d } }

func WithUnmappedPolicy(p UnmappedPolicy) Option { return func(m *Mapper) { m.unmapped = p } }

// WithEndpoint sets the sourceEndpoint stamped on documents that do not map
// one from the row.
func WithEndpoint(e string) Option { return func(m *Mapper) { m.endpoint = e } }

func WithClock(now func() time.Time) Option { return func(m *Mapper) { m.now = now } }

func New(mapping model.SchemaMapping, opts ...Option) *Mapper {
	m := &Mapper{
		mapping: mapping,
		decoder: ogc.Codec{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type field struct {
	target  string
	binding model.RawBinding
}

// fields lists the row's fields with their canonical names: mapped fields in
// mapping order, then passthrough fields sorted by key. A passthrough key
// never shadows a target already filled by a mapped field.
func (m *Mapper) fields(row model.Row) []field {
	out := make([]field, 0, len(row))
	mapped := make(map[string]struct{}, m.mapping.Len())
	filled := make(map[string]struct{}, m.mapping.Len())
	for _, e := range m.mapping.Entries {
		mapped[e.Source] = struct{}{}
		if b, ok := row[e.Source]; ok {
			out = append(out, field{target: e.Target, binding: b})
			filled[e.Target] = struct{}{}
		}
	}
	if m.unmapped == DropUnmapped {
		return out
	}
	rest := make([]string, 0, len(row))
	for k := range row {
		if _, ok := mapped[k]; ok {
			continue
		}
		if _, ok := filled[k]; ok {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, field{target: k, binding: row[k]})
	}
	return out
}

// Map builds one document from row. It never fails: an undecodable geometry
// yields an invalid GeometryField carrying the raw text.
func (m *Mapper) Map(row model.Row, query string) model.FeatureDocument {
	now := m.now().UTC()
	doc := model.FeatureDocument{
		SourceEndpoint: m.endpoint,
		RetrievalQuery: query,
		Geometry:       model.NoGeometry(),
	}

	var (
		geoms   []model.RawBinding
		created time.Time
		updated time.Time
	)
	setProp := func(k string, v any) {
		if doc.Properties == nil {
			doc.Properties = map[string]any{}
		}
		doc.Properties[k] = v
	}

	for _, f := range m.fields(row) {
		v := f.binding.Value
		if f.binding.IsLiteral() && f.binding.Datatype != "" && !strings.HasPrefix(f.target, dataPrefix) {
			setProp(f.target+typeSuffix, f.binding.Datatype)
		}

		switch {
		case f.target == FieldName:
			doc.Name = v
		case f.target == FieldDescription:
			doc.Description = v
		case f.target == FieldGeometry:
			if strings.TrimSpace(v) != "" {
				geoms = append(geoms, f.binding)
			}
		case f.target == FieldBoundaryColor:
			doc.Colors.Boundary = v
		case f.target == FieldFillColor:
			doc.Colors.Fill = v
		case f.target == FieldPointImage:
			doc.Colors.PointImage = v
		case f.target == FieldSourceEndpoint:
			doc.SourceEndpoint = v
		case f.target == FieldCreatedDate:
			created = parseTime(v)
		case f.target == FieldLastUpdated:
			updated = parseTime(v)
		case strings.HasPrefix(f.target, dataPrefix):
			doc.Data = append(doc.Data, model.DataEntry{
				Name:  strings.TrimPrefix(f.target, dataPrefix),
				Value: v,
				Type:  f.binding.Datatype,
			})
		case model.IsReservedKey(f.target):
			// id, layers, maps and friends are not filled from source rows
		default:
			setProp(f.target, v)
		}
	}

	for i := range doc.Data {
		doc.Data[i].Source = doc.SourceEndpoint
	}
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	doc.CreatedDate, doc.LastUpdated = created, updated

	if len(geoms) > 0 {
		doc.Geometry = m.pickGeometry(geoms)
	}
	return doc
}

// pickGeometry decodes the candidates in mapping order and keeps the first
// valid one. When none decodes, the first candidate is reported invalid.
func (m *Mapper) pickGeometry(candidates []model.RawBinding) model.GeometryField {
	var first model.GeometryField
	for i, b := range candidates {
		f := m.decodeGeometry(b.Value, b.Datatype)
		if f.Valid() {
			return f
		}
		if i == 0 {
			first = f
		}
	}
	return first
}

func (m *Mapper) decodeGeometry(raw, datatype string) model.GeometryField {
	var (
		g   *geojson.Geometry
		err error
	)
	if datatype == geoJSONLiteral || strings.HasPrefix(strings.TrimSpace(raw), "{") {
		err = ogc.ErrInvalidGeoJSON
		if ogc.IsValid(json.RawMessage(raw)) {
			var parsed geojson.Geometry
			if json.Unmarshal([]byte(raw), &parsed) == nil {
				g, err = &parsed, nil
			}
		}
	} else {
		dec := m.decoder
		if dec == nil {
			dec = ogc.Codec{}
		}
		g, err = dec.DecodeGeoJSON(raw)
	}
	if err != nil || g == nil {
		if err == nil {
			err = ogc.ErrEmptyGeometry
		}
		return model.InvalidGeometryErr(raw, err)
	}
	f := model.ValidGeometry(g)
	if !f.Valid() {
		return model.InvalidGeometryErr(raw, f.Err())
	}
	return f
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseTime accepts xsd:dateTime and xsd:date lexical forms; anything else is
// treated as missing.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
