package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type countingDecoder struct {
	calls int
	ret   *geojson.Geometry
}

func (d *countingDecoder) DecodeGeoJSON(string) (*geojson.Geometry, error) {
	d.calls++
	if d.ret == nil {
		return nil, ogc.ErrEmptyGeometry
	}
	return d.ret, nil
}

func TestMap_ParkAScenario(t *testing.T) {
	row := model.Row{
		"subject":    {Type: model.KindURI, Value: "http://x/Park_A"},
		"wktLiteral": {Type: model.KindLiteral, Value: "POINT(1 1)"},
	}
	mapping := model.NewSchemaMapping("subject", "subject", "wktLiteral", "geometry")
	q := "SELECT ?subject ?wktLiteral WHERE { ?subject geo:asWKT ?wktLiteral }"

	doc := New(mapping, WithClock(clock)).Map(row, q)

	if doc.Properties["subject"] != "http://x/Park_A" {
		t.Fatalf("subject=%v", doc.Properties["subject"])
	}
	if !doc.Geometry.Valid() {
		t.Fatalf("geometry state=%v", doc.Geometry.State())
	}
	b, err := json.Marshal(doc.Geometry.Geometry())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"Point","coordinates":[1,1]}` {
		t.Fatalf("geometry=%s", b)
	}
	if doc.RetrievalQuery != q {
		t.Fatalf("retrievalQuery=%q", doc.RetrievalQuery)
	}
	if !doc.CreatedDate.Equal(fixedNow) || !doc.LastUpdated.Equal(fixedNow) {
		t.Fatalf("timestamps=%v %v", doc.CreatedDate, doc.LastUpdated)
	}
}

func TestMap_TypedFieldsAndDatatypes(t *testing.T) {
	const xsdDate = "http://www.w3.org/2001/XMLSchema#date"
	row := model.Row{
		"label":   {Type: model.KindLiteral, Value: "Central Park", Lang: "en"},
		"comment": {Type: model.KindLiteral, Value: "a park"},
		"fill":    {Type: model.KindLiteral, Value: "#00ff00"},
		"area":    {Type: model.KindLiteral, Value: "3.41", Datatype: "http://www.w3.org/2001/XMLSchema#decimal"},
		"created": {Type: model.KindLiteral, Value: "2020-01-02", Datatype: xsdDate},
		"height":  {Type: model.KindTypedLiteral, Value: "12", Datatype: "http://www.w3.org/2001/XMLSchema#integer"},
	}
	mapping := model.NewSchemaMapping(
		"label", "name",
		"comment", "description",
		"fill", "fillColor",
		"area", "data.area",
		"created", "createdDate",
	)
	doc := New(mapping, WithClock(clock), WithEndpoint("http://ep/sparql")).Map(row, "q")

	if doc.Name != "Central Park" || doc.Description != "a park" || doc.Colors.Fill != "#00ff00" {
		t.Fatalf("typed fields: %+v", doc)
	}
	if len(doc.Data) != 1 {
		t.Fatalf("data=%+v", doc.Data)
	}
	d := doc.Data[0]
	if d.Name != "area" || d.Value != "3.41" || d.Source != "http://ep/sparql" || d.Type == "" {
		t.Fatalf("data entry=%+v", d)
	}
	if !doc.CreatedDate.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("createdDate=%v", doc.CreatedDate)
	}
	if !doc.LastUpdated.Equal(fixedNow) {
		t.Fatalf("lastUpdated must default to now, got %v", doc.LastUpdated)
	}
	if doc.Properties["createdDate_type"] != xsdDate {
		t.Fatalf("missing datatype attribute: %v", doc.Properties)
	}
	if doc.Properties["height"] != "12" || doc.Properties["height_type"] == nil {
		t.Fatalf("passthrough literal lost: %v", doc.Properties)
	}
	if doc.SourceEndpoint != "http://ep/sparql" {
		t.Fatalf("sourceEndpoint=%q", doc.SourceEndpoint)
	}
	if doc.Geometry.Present() {
		t.Fatalf("no geometry field mapped, got %v", doc.Geometry.State())
	}
}

func TestMap_UnmappedPolicy(t *testing.T) {
	row := model.Row{
		"s":     {Type: model.KindURI, Value: "http://x/a"},
		"extra": {Type: model.KindLiteral, Value: "kept?"},
	}
	mapping := model.NewSchemaMapping("s", "name")

	pass := New(mapping, WithClock(clock)).Map(row, "q")
	if pass.Properties["extra"] != "kept?" {
		t.Fatalf("passthrough lost field: %v", pass.Properties)
	}
	drop := New(mapping, WithClock(clock), WithUnmappedPolicy(DropUnmapped)).Map(row, "q")
	if _, ok := drop.Properties["extra"]; ok {
		t.Fatalf("drop policy kept field: %v", drop.Properties)
	}
	if drop.Name != "http://x/a" {
		t.Fatalf("mapped field lost: %+v", drop)
	}

	if p, err := ParseUnmappedPolicy("DROP"); err != nil || p != DropUnmapped {
		t.Fatalf("parse drop: %v %v", p, err)
	}
	if _, err := ParseUnmappedPolicy("keep-some"); err == nil {
		t.Fatalf("unknown policy must fail")
	}
}

func TestMap_GeometryDecoding(t *testing.T) {
	mapping := model.NewSchemaMapping("g", "geometry")

	bad := New(mapping, WithClock(clock)).Map(model.Row{"g": {Type: model.KindLiteral, Value: "POLYGON(()"}}, "q")
	if bad.Geometry.State() != model.GeometryInvalid || bad.Geometry.Raw() != "POLYGON(()" {
		t.Fatalf("malformed wkt: state=%v raw=%q", bad.Geometry.State(), bad.Geometry.Raw())
	}
	if bad.Geometry.Err() == nil {
		t.Fatalf("malformed wkt must keep its decode error")
	}
	flat := New(mapping).Map(model.Row{"g": {Type: model.KindLiteral, Value: "LINESTRING (1 1, 1 1)"}}, "q")
	if !errors.Is(flat.Geometry.Err(), ogc.ErrEmptyGeometry) {
		t.Fatalf("zero-length line: err=%v", flat.Geometry.Err())
	}

	dec := &countingDecoder{}
	blank := New(mapping, WithDecoder(dec)).Map(model.Row{"g": {Type: model.KindLiteral, Value: "  "}}, "q")
	if blank.Geometry.Present() || dec.calls != 0 {
		t.Fatalf("blank geometry must stay absent without decoding")
	}

	gj := model.Row{"g": {
		Type:     model.KindLiteral,
		Value:    `{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		Datatype: geoJSONLiteral,
	}}
	line := New(mapping, WithDecoder(dec)).Map(gj, "q")
	if !line.Geometry.Valid() || line.Geometry.Geometry().Type != "LineString" || dec.calls != 0 {
		t.Fatalf("geojson literal: state=%v calls=%d", line.Geometry.State(), dec.calls)
	}

	crs := model.Row{"g": {Type: model.KindLiteral, Value: "<http://www.opengis.net/def/crs/OGC/1.3/CRS84> POINT(10 20)"}}
	if doc := New(mapping).Map(crs, "q"); !doc.Geometry.Valid() {
		t.Fatalf("crs-prefixed wkt must decode")
	}
}

func TestMap_Deterministic(t *testing.T) {
	row := model.Row{
		"b": {Type: model.KindLiteral, Value: "2"},
		"a": {Type: model.KindLiteral, Value: "1"},
		"w": {Type: model.KindLiteral, Value: "LINESTRING(0 0, 1 1)"},
	}
	m := New(model.NewSchemaMapping("w", "geometry"), WithClock(clock))
	x, _ := json.Marshal(m.Map(row, "q"))
	y, _ := json.Marshal(m.Map(row, "q"))
	if string(x) != string(y) {
		t.Fatalf("same row, same clock, different documents:\n%s\n%s", x, y)
	}
}

func TestMap_FirstDecodableGeometryWins(t *testing.T) {
	mapping := model.NewSchemaMapping(
		"subject", "name",
		"object", "geometry",
		"wktLiteral", "geometry",
	)
	row := model.Row{
		"subject":    {Type: model.KindURI, Value: "http://x/Park_A"},
		"object":     {Type: model.KindURI, Value: "http://www.opengis.net/ont/sf#Point"},
		"wktLiteral": {Type: model.KindLiteral, Value: "POINT(1 1)"},
	}
	doc := New(mapping, WithClock(clock)).Map(row, "q")
	if !doc.Geometry.Valid() || doc.Geometry.Geometry().Type != "Point" {
		t.Fatalf("state=%v raw=%q", doc.Geometry.State(), doc.Geometry.Raw())
	}

	row["wktLiteral"] = model.RawBinding{Type: model.KindLiteral, Value: "POINT EMPTY"}
	doc = New(mapping, WithClock(clock)).Map(row, "q")
	if doc.Geometry.State() != model.GeometryInvalid || doc.Geometry.Raw() != "http://www.opengis.net/ont/sf#Point" {
		t.Fatalf("no decodable candidate: state=%v raw=%q", doc.Geometry.State(), doc.Geometry.Raw())
	}
}

func TestMap_PassthroughDoesNotShadowMappedTarget(t *testing.T) {
	mapping := model.NewSchemaMapping("subject", "name")
	row := model.Row{
		"subject": {Type: model.KindURI, Value: "http://x/Park_A"},
		"name":    {Type: model.KindLiteral, Value: "shadow"},
		"extra":   {Type: model.KindLiteral, Value: "kept"},
	}
	doc := New(mapping, WithClock(clock)).Map(row, "q")
	if doc.Name != "http://x/Park_A" {
		t.Fatalf("name=%q", doc.Name)
	}
	if doc.Properties["extra"] != "kept" {
		t.Fatalf("unrelated passthrough field lost: %v", doc.Properties)
	}

	// without the mapped source the raw column still passes through
	delete(row, "subject")
	doc = New(mapping, WithClock(clock)).Map(row, "q")
	if doc.Name != "shadow" {
		t.Fatalf("name=%q", doc.Name)
	}
}
