// Package render turns a LayeredMap into a map artifact.
package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"github.com/Jimkik/GeoData-Project/internal/layers"
)

type Renderer interface {
	ContentType() string
	Render(w io.Writer, m layers.LayeredMap) error
}

//go:embed assets/map.html.tmpl
var mapTemplate string

type pageLayer struct {
	Name    string                     `json:"name"`
	Style   layers.Style               `json:"style"`
	Visible bool                       `json:"visible"`
	ZIndex  int                        `json:"zIndex"`
	Data    *geojson.FeatureCollection `json:"data"`
}

type page struct {
	Center    [2]float64  `json:"center"`
	Zoom      int         `json:"zoom"`
	Collapsed bool        `json:"collapsed"`
	Layers    []pageLayer `json:"layers"`
}

// HTML renders a self-contained Leaflet page. The template source is minified
// once at construction; rendered output is written as html/template escapes it.
type HTML struct {
	title string
	tmpl  *template.Template
}

type HTMLOption func(*HTML)

func WithTitle(t string) HTMLOption {
	return func(h *HTML) { h.title = t }
}

const (
	pageAction      = "{{.Page}}"
	pagePlaceholder = "__page_data__"
)

func NewHTML(opts ...HTMLOption) (*HTML, error) {
	src, err := minifyTemplate(mapTemplate)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New("map").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse map template: %w", err)
	}

	h := &HTML{title: "GeoData layers", tmpl: tmpl}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// minifyTemplate minifies the page source with the data action swapped for
// a plain identifier, so the JS minifier sees valid script.
func minifyTemplate(src string) (string, error) {
	if !strings.Contains(src, pageAction) {
		return "", fmt.Errorf("map template lacks %s", pageAction)
	}
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)

	var out bytes.Buffer
	in := strings.Replace(src, pageAction, pagePlaceholder, 1)
	if err := m.Minify("text/html", &out, strings.NewReader(in)); err != nil {
		return "", fmt.Errorf("minify map template: %w", err)
	}
	minified := out.String()
	if !strings.Contains(minified, pagePlaceholder) {
		return "", fmt.Errorf("minified map template lost the page data")
	}
	return strings.Replace(minified, pagePlaceholder, pageAction, 1), nil
}

func (*HTML) ContentType() string { return "text/html; charset=utf-8" }

func (h *HTML) Render(w io.Writer, m layers.LayeredMap) error {
	toggled := make(map[string]struct{}, len(m.Control.Layers))
	for _, n := range m.Control.Layers {
		toggled[n] = struct{}{}
	}
	p := page{
		Center:    [2]float64{m.View.Center[0], m.View.Center[1]},
		Zoom:      m.View.Zoom,
		Collapsed: m.Control.Collapsed,
	}
	for _, l := range m.Layers {
		// layers missing from the control cannot be toggled, keep them out
		if _, ok := toggled[l.Name]; !ok {
			continue
		}
		p.Layers = append(p.Layers, pageLayer{
			Name:    l.Name,
			Style:   l.Style,
			Visible: l.Visible,
			ZIndex:  l.ZIndex,
			Data:    l.FeatureCollection(),
		})
	}

	if err := h.tmpl.Execute(w, struct {
		Title string
		Page  page
	}{h.title, p}); err != nil {
		return fmt.Errorf("execute map template: %w", err)
	}
	return nil
}

// GeoJSON writes the layered map as JSON, each layer carrying its features as
// a FeatureCollection.
type GeoJSON struct{}

func (GeoJSON) ContentType() string { return "application/geo+json" }

func (GeoJSON) Render(w io.Writer, m layers.LayeredMap) error {
	type layerOut struct {
		Name     string                     `json:"name"`
		Style    layers.Style               `json:"style"`
		Visible  bool                       `json:"visible"`
		ZIndex   int                        `json:"zIndex"`
		Features *geojson.FeatureCollection `json:"features"`
	}
	out := struct {
		Layers  []layerOut     `json:"layers"`
		Control layers.Control `json:"control"`
		View    layers.View    `json:"view"`
	}{Control: m.Control, View: m.View, Layers: make([]layerOut, 0, len(m.Layers))}
	for _, l := range m.Layers {
		out.Layers = append(out.Layers, layerOut{
			Name:     l.Name,
			Style:    l.Style,
			Visible:  l.Visible,
			ZIndex:   l.ZIndex,
			Features: l.FeatureCollection(),
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encode layered map: %w", err)
	}
	return nil
}

type Format int

const (
	FormatHTML Format = iota
	FormatGeoJSON
)

func (f Format) String() string {
	if f == FormatGeoJSON {
		return "geojson"
	}
	return "html"
}

// NegotiateFormat picks the map format from an explicit format parameter,
// then from the Accept header by q-value. The first media range wins ties and
// HTML is the default.
func NegotiateFormat(accept, format string) Format {
	switch f := strings.ToLower(strings.TrimSpace(format)); {
	case f == "geojson", f == "json", strings.Contains(f, "geo+json"), strings.HasPrefix(f, "application/json"):
		return FormatGeoJSON
	case f == "html", strings.HasPrefix(f, "text/html"):
		return FormatHTML
	}

	bestQ := -1.0
	best := FormatHTML
	for part := range strings.SplitSeq(strings.ToLower(accept), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt, params, _ := strings.Cut(token, ";")
		mt = strings.TrimSpace(mt)
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			if after, ok := strings.CutPrefix(strings.TrimSpace(p), "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}
		var cand Format
		switch {
		case mt == "text/html", mt == "application/xhtml+xml", mt == "*/*", mt == "text/*":
			cand = FormatHTML
		case strings.Contains(mt, "geo+json"), mt == "application/json":
			cand = FormatGeoJSON
		default:
			continue
		}
		if q > bestQ {
			bestQ, best = q, cand
		}
	}
	return best
}

// For returns the renderer of f, falling back to GeoJSON when no HTML
// renderer is available.
func For(f Format, h *HTML) Renderer {
	if f == FormatHTML && h != nil {
		return h
	}
	return GeoJSON{}
}
