package store

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

type fakeBackend struct {
	calls    int
	written  []model.FeatureDocument
	failWith error
	partial  int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) InsertMany(_ context.Context, _ string, docs []model.FeatureDocument) (int, error) {
	f.calls++
	if f.failWith != nil {
		return f.partial, f.failWith
	}
	f.written = append(f.written, docs...)
	return len(docs), nil
}

func (f *fakeBackend) FindAll(context.Context, string) ([]model.FeatureDocument, error) {
	return f.written, nil
}

func validDoc(name string) model.FeatureDocument {
	return model.FeatureDocument{Name: name, Geometry: model.ValidGeometry(geojson.NewGeometry(orb.Point{1, 1}))}
}

func invalidDoc(name string) model.FeatureDocument {
	return model.FeatureDocument{Name: name, Geometry: model.InvalidGeometry("POLYGON(()")}
}

func TestWriteBatch_FiveDocsThreeValid(t *testing.T) {
	fb := &fakeBackend{}
	a := NewAdapter(fb, "geo_features", DropInvalidDocument, nil)

	docs := []model.FeatureDocument{
		validDoc("a"), invalidDoc("b"), validDoc("c"), invalidDoc("d"), validDoc("e"),
	}
	res, err := a.WriteBatch(context.Background(), docs)
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if res.Accepted != 3 || res.Rejected != 2 || res.Nullified != 0 {
		t.Fatalf("result=%+v", res)
	}
	if fb.calls != 1 {
		t.Fatalf("backend calls=%d want a single bulk insert", fb.calls)
	}
	for _, d := range fb.written {
		if d.Geometry.Present() && !ogc.IsValid(d.Geometry.Geometry()) {
			t.Fatalf("accepted document %q carries invalid geometry", d.Name)
		}
	}
}

func TestWriteBatch_NullifyKeepsDocuments(t *testing.T) {
	fb := &fakeBackend{}
	a := NewAdapter(fb, "geo_features", NullifyInvalidGeometry, nil)

	res, err := a.WriteBatch(context.Background(), []model.FeatureDocument{validDoc("a"), invalidDoc("b")})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 0 || res.Nullified != 1 {
		t.Fatalf("result=%+v", res)
	}
	if fb.written[1].Geometry.Present() {
		t.Fatalf("nullified document still has geometry")
	}
}

func TestWriteBatch_NothingAcceptedSkipsBackend(t *testing.T) {
	fb := &fakeBackend{}
	a := NewAdapter(fb, "geo_features", DropInvalidDocument, nil)
	res, err := a.WriteBatch(context.Background(), []model.FeatureDocument{invalidDoc("x")})
	if err != nil || res.Accepted != 0 || fb.calls != 0 {
		t.Fatalf("res=%+v err=%v calls=%d", res, err, fb.calls)
	}
}

func TestWriteBatch_BackendFailureSurfacesPartialCount(t *testing.T) {
	boom := errors.New("duplicate key")
	fb := &fakeBackend{failWith: boom, partial: 1}
	a := NewAdapter(fb, "geo_features", DropInvalidDocument, nil)

	res, err := a.WriteBatch(context.Background(), []model.FeatureDocument{validDoc("a"), validDoc("b")})
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("want *WriteError, got %T %v", err, err)
	}
	if we.Accepted != 1 || res.Accepted != 1 || !errors.Is(err, boom) {
		t.Fatalf("write error=%+v res=%+v", we, res)
	}
}

func TestWriteBatch_CancelledContextWritesNothing(t *testing.T) {
	fb := &fakeBackend{}
	a := NewAdapter(fb, "geo_features", DropInvalidDocument, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.WriteBatch(ctx, []model.FeatureDocument{validDoc("a")})
	if !errors.Is(err, context.Canceled) || fb.calls != 0 {
		t.Fatalf("err=%v calls=%d", err, fb.calls)
	}
}

func TestPartition_AbsentGeometryAccepted(t *testing.T) {
	acc, rej, null := Partition([]model.FeatureDocument{{Name: "no geometry"}}, DropInvalidDocument)
	if len(acc) != 1 || len(rej) != 0 || null != 0 {
		t.Fatalf("acc=%d rej=%d null=%d", len(acc), len(rej), null)
	}
}

func TestParseWritePolicy(t *testing.T) {
	if p, err := ParseWritePolicy("Nullify"); err != nil || p != NullifyInvalidGeometry {
		t.Fatalf("nullify: %v %v", p, err)
	}
	if p, err := ParseWritePolicy(""); err != nil || p != DropInvalidDocument {
		t.Fatalf("default: %v %v", p, err)
	}
	if _, err := ParseWritePolicy("upsert"); err == nil {
		t.Fatalf("unknown policy must fail")
	}
}

func TestReadAll(t *testing.T) {
	fb := &fakeBackend{written: []model.FeatureDocument{validDoc("a")}}
	docs, err := NewAdapter(fb, "c", DropInvalidDocument, nil).ReadAll(context.Background())
	if err != nil || len(docs) != 1 {
		t.Fatalf("ReadAll=%v, %v", docs, err)
	}
}
