package featurestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	h3mapper "github.com/Jimkik/GeoData-Project/internal/mapper/h3"
	"github.com/Jimkik/GeoData-Project/internal/store/keys"
	"github.com/Jimkik/GeoData-Project/internal/store/redisstore"
)

const coll = "geo_features"

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func pointDoc(name string, x, y float64) model.FeatureDocument {
	return model.FeatureDocument{
		Name:           name,
		Geometry:       model.ValidGeometry(geojson.NewGeometry(orb.Point{x, y})),
		RetrievalQuery: "q",
		Properties:     map[string]any{"subject": "http://x/" + name},
	}
}

func TestInsertMany_FindAll_RoundTrip(t *testing.T) {
	cli, mr := newMini(t)
	s := New(cli, WithIDFunc(seqIDs()), WithCellIndex(h3mapper.New(), 7))
	ctx := context.Background()

	docs := []model.FeatureDocument{
		pointDoc("Park_A", -73.97, 40.78),
		{Name: "no geometry", RetrievalQuery: "q"},
	}
	n, err := s.InsertMany(ctx, coll, docs)
	if err != nil {
		t.Fatalf("InsertMany: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d want 2", n)
	}
	if !mr.Exists(keys.Doc(coll, "id-1")) || !mr.Exists(keys.Doc(coll, "id-2")) {
		t.Fatalf("document keys missing: %v", mr.Keys())
	}

	got, err := s.FindAll(ctx, coll)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindAll=%d docs", len(got))
	}
	if got[0].ID != "id-1" || !got[0].Geometry.Valid() || got[0].Properties["subject"] != "http://x/Park_A" {
		t.Fatalf("doc 0=%+v", got[0])
	}
	if got[1].Geometry.Present() {
		t.Fatalf("doc without geometry came back with one")
	}

	// appends, never replaces
	if _, err := s.InsertMany(ctx, coll, docs[:1]); err != nil {
		t.Fatalf("second InsertMany: %v", err)
	}
	if all, _ := s.FindAll(ctx, coll); len(all) != 3 {
		t.Fatalf("after append: %d docs want 3", len(all))
	}
}

func TestFindByCell(t *testing.T) {
	cli, _ := newMini(t)
	s := New(cli, WithIDFunc(seqIDs()), WithCellIndex(h3mapper.New(), 8))
	ctx := context.Background()

	if _, err := s.InsertMany(ctx, coll, []model.FeatureDocument{
		pointDoc("near", 18.0686, 59.3293),
		pointDoc("far", 11.9746, 57.7089),
	}); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	c8, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	got, err := s.FindByCell(ctx, coll, c8.String())
	if err != nil {
		t.Fatalf("FindByCell: %v", err)
	}
	if len(got) != 1 || got[0].Name != "near" {
		t.Fatalf("FindByCell=%+v", got)
	}

	// a coarser cell covers its descendants
	c6, _ := c8.Parent(6)
	got, err = s.FindByCell(ctx, coll, c6.String())
	if err != nil || len(got) != 1 {
		t.Fatalf("coarse FindByCell=%v, %v", got, err)
	}

	if _, err := s.FindByCell(ctx, coll, "nope"); err == nil {
		t.Fatalf("bad cell must fail")
	}
	if _, err := New(cli).FindByCell(ctx, coll, c8.String()); err == nil {
		t.Fatalf("store without index must refuse cell lookups")
	}
}

func TestInsertMany_ServerDownWritesNothing(t *testing.T) {
	cli, mr := newMini(t)
	s := New(cli)
	mr.Close()

	n, err := s.InsertMany(context.Background(), coll, []model.FeatureDocument{pointDoc("a", 1, 1)})
	if err == nil {
		t.Fatalf("expected error with server down")
	}
	if n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
}

func TestInsertMany_Empty(t *testing.T) {
	cli, mr := newMini(t)
	n, err := New(cli).InsertMany(context.Background(), coll, nil)
	if err != nil || n != 0 {
		t.Fatalf("empty batch: %d, %v", n, err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("empty batch touched redis: %v", mr.Keys())
	}
}
