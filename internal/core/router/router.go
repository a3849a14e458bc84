// Package router holds the HTTP handlers of the service and wires them onto
// a chi router.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/Jimkik/GeoData-Project/internal/core/executor"
	"github.com/Jimkik/GeoData-Project/internal/core/health"
	middleware "github.com/Jimkik/GeoData-Project/internal/core/middleware"
	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/layers"
	h3mapper "github.com/Jimkik/GeoData-Project/internal/mapper/h3"
	"github.com/Jimkik/GeoData-Project/internal/pipeline"
	"github.com/Jimkik/GeoData-Project/internal/render"
)

const maxQueryBytes = 1 << 20

var cellParser = h3mapper.New()

type Ingester interface {
	Run(ctx context.Context, query string) (pipeline.Report, error)
}

type MapBuilder interface {
	Build(ctx context.Context) (layers.LayeredMap, error)
}

type CellFinder interface {
	FindByCell(ctx context.Context, collection, cell string) ([]model.FeatureDocument, error)
}

type Deps struct {
	Ingester   Ingester
	Maps       MapBuilder
	HTML       *render.HTML
	Cells      CellFinder // nil when the backend has no cell index
	Collection string
	Metrics    http.Handler
	Ready      []health.Check
}

// New builds the service router.
func New(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(0, d.Ready...))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Post("/ingest", HandleIngest(logger, d.Ingester))
	r.Get("/map", HandleMap(logger, d.Maps, d.HTML))
	r.Get("/features", HandleFeatures(logger, d.Cells, d.Collection))
	return r
}

// ParseIngestRequest reads the query from a JSON body {"query": "..."} or
// from a form field named query.
func ParseIngestRequest(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var q string
	switch ct {
	case "application/json":
		var body struct {
			Query string `json:"query"`
		}
		dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes))
		if err := dec.Decode(&body); err != nil {
			return "", fmt.Errorf("decode json body: %w", err)
		}
		q = body.Query
	default:
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("parse form: %w", err)
		}
		q = r.FormValue("query")
	}
	if strings.TrimSpace(q) == "" {
		return "", errors.New("missing required parameter: query")
	}
	return q, nil
}

func HandleIngest(logger *slog.Logger, ing Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseIngestRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rep, err := ing.Run(r.Context(), q)
		if err != nil {
			status := ingestStatus(err)
			logger.WarnContext(r.Context(), "ingest failed", "status", status, "err", err)
			writeJSON(w, status, struct {
				Error  string          `json:"error"`
				Report pipeline.Report `json:"report"`
			}{err.Error(), rep})
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func ingestStatus(err error) int {
	var (
		qe  *executor.QueryError
		tpe *executor.TransportParseError
	)
	switch {
	case errors.As(err, &qe), errors.As(err, &tpe):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func HandleMap(logger *slog.Logger, maps MapBuilder, html *render.HTML) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := maps.Build(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "map build failed", "err", err)
			http.Error(w, "map unavailable", http.StatusServiceUnavailable)
			return
		}

		f := render.NegotiateFormat(r.Header.Get("Accept"), r.URL.Query().Get("format"))
		rd := render.For(f, html)

		var buf bytes.Buffer
		if err := rd.Render(&buf, m); err != nil {
			logger.ErrorContext(r.Context(), "map render failed", "format", f.String(), "err", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", rd.ContentType())
		w.Header().Set("Vary", "Accept")
		_, _ = buf.WriteTo(w)
	}
}

func HandleFeatures(logger *slog.Logger, cells CellFinder, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cells == nil {
			http.Error(w, "cell index not available for this store", http.StatusNotImplemented)
			return
		}
		cell := strings.TrimSpace(r.URL.Query().Get("cell"))
		if cell == "" {
			http.Error(w, "missing required parameter: cell", http.StatusBadRequest)
			return
		}
		if !cellParser.ValidCell(cell) {
			http.Error(w, fmt.Sprintf("invalid h3 cell %q", cell), http.StatusBadRequest)
			return
		}

		docs, err := cells.FindByCell(r.Context(), collection, cell)
		if err != nil {
			logger.ErrorContext(r.Context(), "cell lookup failed", "cell", cell, "err", err)
			http.Error(w, "lookup failed", http.StatusServiceUnavailable)
			return
		}

		fc := geojson.NewFeatureCollection()
		for _, d := range docs {
			g := d.Geometry.Geometry()
			if g == nil {
				continue
			}
			f := geojson.NewFeature(g.Coordinates)
			if d.ID != "" {
				f.ID = d.ID
			}
			f.Properties["name"] = d.Name
			if d.Description != "" {
				f.Properties["description"] = d.Description
			}
			fc.Append(f)
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(fc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
