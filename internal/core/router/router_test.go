package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/Jimkik/GeoData-Project/internal/core/executor"
	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/layers"
	"github.com/Jimkik/GeoData-Project/internal/pipeline"
	"github.com/Jimkik/GeoData-Project/internal/render"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeIngester struct {
	lastQuery string
	rep       pipeline.Report
	err       error
}

func (f *fakeIngester) Run(_ context.Context, q string) (pipeline.Report, error) {
	f.lastQuery = q
	return f.rep, f.err
}

type fakeMaps struct {
	docs []model.FeatureDocument
	err  error
}

func (f fakeMaps) Build(context.Context) (layers.LayeredMap, error) {
	if f.err != nil {
		return layers.LayeredMap{}, f.err
	}
	return layers.NewBuilder(layers.Keyword{}).Build(f.docs), nil
}

type fakeCells struct {
	gotColl, gotCell string
	docs             []model.FeatureDocument
}

func (f *fakeCells) FindByCell(_ context.Context, coll, cell string) ([]model.FeatureDocument, error) {
	f.gotColl, f.gotCell = coll, cell
	return f.docs, nil
}

func park() model.FeatureDocument {
	return model.FeatureDocument{
		ID:       "p1",
		Name:     "Central Park",
		Geometry: model.ValidGeometry(geojson.NewGeometry(orb.Point{-73.96, 40.78})),
	}
}

func newTestRouter(t *testing.T, d Deps) http.Handler {
	t.Helper()
	if d.HTML == nil {
		h, err := render.NewHTML()
		if err != nil {
			t.Fatalf("render.NewHTML: %v", err)
		}
		d.HTML = h
	}
	return New(discard(), d)
}

func TestParseIngestRequest(t *testing.T) {
	form := url.Values{"query": {"SELECT * WHERE {}"}}
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	q, err := ParseIngestRequest(req)
	if err != nil || q != "SELECT * WHERE {}" {
		t.Fatalf("form: q=%q err=%v", q, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"query":"ASK {}"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	q, err = ParseIngestRequest(req)
	if err != nil || q != "ASK {}" {
		t.Fatalf("json: q=%q err=%v", q, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := ParseIngestRequest(req); err == nil {
		t.Fatalf("blank query must be rejected")
	}
}

func TestIngest_OK(t *testing.T) {
	ing := &fakeIngester{rep: pipeline.Report{RunID: "r1", Rows: 5, Written: 3, Rejected: 2}}
	h := newTestRouter(t, Deps{Ingester: ing, Maps: fakeMaps{}})

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"query":"SELECT 1"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var rep pipeline.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Written != 3 || ing.lastQuery != "SELECT 1" {
		t.Fatalf("report=%+v query=%q", rep, ing.lastQuery)
	}
}

func TestIngest_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("execute query: %w", &executor.QueryError{Endpoint: "x", Status: 500}), http.StatusBadGateway},
		{fmt.Errorf("execute query: %w", &executor.TransportParseError{Format: "text/csv", Err: errors.New("bad")}), http.StatusBadGateway},
		{fmt.Errorf("map rows: %w", context.Canceled), http.StatusServiceUnavailable},
		{errors.New("write batch: boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newTestRouter(t, Deps{Ingester: &fakeIngester{err: tc.err}, Maps: fakeMaps{}})
		req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("query=SELECT+1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%v: status=%d want %d", tc.err, rr.Code, tc.want)
		}
	}
}

func TestIngest_MissingQuery(t *testing.T) {
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{}})
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rr.Code)
	}
}

func TestMap_Negotiation(t *testing.T) {
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{docs: []model.FeatureDocument{park()}}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/map", nil))
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("html: status=%d ct=%q", rr.Code, rr.Header().Get("Content-Type"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/map?format=geojson", nil))
	if rr.Header().Get("Content-Type") != "application/geo+json" {
		t.Fatalf("geojson ct=%q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "Central Park") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestMap_BuildError(t *testing.T) {
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{err: errors.New("down")}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/map", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}

func TestFeatures(t *testing.T) {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 40.78, Lng: -73.96}, 8)
	if err != nil {
		t.Fatalf("h3: %v", err)
	}
	cells := &fakeCells{docs: []model.FeatureDocument{park(), {ID: "nogeom", Name: "x"}}}
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{}, Cells: cells, Collection: "geo_features"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features?cell="+cell.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if cells.gotColl != "geo_features" || cells.gotCell != cell.String() {
		t.Fatalf("lookup coll=%q cell=%q", cells.gotColl, cells.gotCell)
	}
	fc, err := geojson.UnmarshalFeatureCollection(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "Central Park" {
		t.Fatalf("features=%s", rr.Body.String())
	}

	for _, q := range []string{"", "?cell=zzz"} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%q: status=%d want 400", q, rr.Code)
		}
	}
}

func TestFeatures_NoIndex(t *testing.T) {
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features?cell=88283082a3fffff", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d want 501", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, Deps{Ingester: &fakeIngester{}, Maps: fakeMaps{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz with no checks status=%d", rr.Code)
	}
}
