package executor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

// Parse decodes a result body in the given transport.
func Parse(format string, body []byte) (model.ResultSet, error) {
	format = ogc.NormalizeFormat(format)
	var (
		rs  model.ResultSet
		err error
	)
	switch format {
	case ogc.FormatCSV:
		rs, err = parseCSV(body)
	case ogc.FormatTSV:
		rs, err = parseTSV(body)
	default:
		rs, err = parseSPARQLJSON(body)
	}
	if err != nil {
		return model.ResultSet{}, &TransportParseError{Format: format, Err: err}
	}
	rs.Count = len(rs.Rows)
	return rs, nil
}

type sparqlJSON struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings *[]map[string]model.RawBinding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

func parseSPARQLJSON(body []byte) (model.ResultSet, error) {
	var doc sparqlJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.ResultSet{}, fmt.Errorf("decode json: %w", err)
	}
	if doc.Results == nil || doc.Results.Bindings == nil {
		if doc.Boolean != nil {
			return model.ResultSet{}, errors.New("boolean (ASK) result carries no rows")
		}
		return model.ResultSet{}, errors.New("missing results.bindings")
	}

	bindings := *doc.Results.Bindings
	rows := make([]model.Row, 0, len(bindings))
	for i, b := range bindings {
		row := make(model.Row, len(b))
		for k, v := range b {
			switch v.Type {
			case model.KindURI, model.KindLiteral, model.KindBNode:
			case model.KindTypedLiteral:
				v.Type = model.KindLiteral
			default:
				return model.ResultSet{}, fmt.Errorf("row %d var %q: unknown term type %q", i, k, v.Type)
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return model.ResultSet{Vars: doc.Head.Vars, Rows: rows}, nil
}

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:\S*$`)

// the CSV transport drops term kinds, so they are inferred from the value
func inferKind(v string) string {
	switch {
	case strings.HasPrefix(v, "_:"):
		return model.KindBNode
	case schemePrefix.MatchString(v):
		return model.KindURI
	default:
		return model.KindLiteral
	}
}

func parseCSV(body []byte) (model.ResultSet, error) {
	r := csv.NewReader(bytes.NewReader(body))
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.ResultSet{}, errors.New("empty body, header row expected")
		}
		return model.ResultSet{}, fmt.Errorf("read header: %w", err)
	}
	vars := make([]string, len(header))
	for i, h := range header {
		vars[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}

	var rows []model.Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.ResultSet{}, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		row := make(model.Row, len(rec))
		for i, v := range rec {
			if v == "" {
				continue
			}
			row[vars[i]] = model.RawBinding{Type: inferKind(v), Value: v}
		}
		rows = append(rows, row)
	}
	return model.ResultSet{Vars: vars, Rows: rows}, nil
}

func parseTSV(body []byte) (model.ResultSet, error) {
	text := strings.TrimRight(string(body), "\r\n")
	if strings.TrimSpace(text) == "" {
		return model.ResultSet{}, errors.New("empty body, header row expected")
	}
	lines := strings.Split(text, "\n")

	header := strings.Split(strings.TrimRight(lines[0], "\r"), "\t")
	vars := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if !strings.HasPrefix(h, "?") && !strings.HasPrefix(h, "$") {
			return model.ResultSet{}, fmt.Errorf("header column %d: %q is not a variable", i, h)
		}
		vars[i] = h[1:]
	}

	rows := make([]model.Row, 0, len(lines)-1)
	for n, line := range lines[1:] {
		cols := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(cols) != len(vars) {
			return model.ResultSet{}, fmt.Errorf("row %d: %d columns, header has %d", n+1, len(cols), len(vars))
		}
		row := make(model.Row, len(cols))
		for i, c := range cols {
			if c == "" {
				continue
			}
			b, err := parseTerm(c)
			if err != nil {
				return model.ResultSet{}, fmt.Errorf("row %d var %q: %w", n+1, vars[i], err)
			}
			row[vars[i]] = b
		}
		rows = append(rows, row)
	}
	return model.ResultSet{Vars: vars, Rows: rows}, nil
}

// parseTerm reads one RDF term in the N-Triples style used by SPARQL TSV.
func parseTerm(s string) (model.RawBinding, error) {
	switch {
	case strings.HasPrefix(s, "<"):
		if !strings.HasSuffix(s, ">") {
			return model.RawBinding{}, fmt.Errorf("unterminated IRI %q", s)
		}
		return model.RawBinding{Type: model.KindURI, Value: s[1 : len(s)-1]}, nil
	case strings.HasPrefix(s, "_:"):
		return model.RawBinding{Type: model.KindBNode, Value: s[2:]}, nil
	case strings.HasPrefix(s, `"`):
		end := strings.LastIndex(s, `"`)
		if end == 0 {
			return model.RawBinding{}, fmt.Errorf("unterminated literal %q", s)
		}
		b := model.RawBinding{Type: model.KindLiteral, Value: unescapeLiteral(s[1:end])}
		rest := s[end+1:]
		switch {
		case rest == "":
		case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
			b.Datatype = rest[3 : len(rest)-1]
		case strings.HasPrefix(rest, "@") && len(rest) > 1:
			b.Lang = rest[1:]
		default:
			return model.RawBinding{}, fmt.Errorf("bad literal suffix %q", rest)
		}
		return b, nil
	default:
		// bare numbers and booleans
		return model.RawBinding{Type: model.KindLiteral, Value: s}, nil
	}
}

var literalUnescaper = strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\r`, "\r", `\"`, `"`, `\\`, `\`)

func unescapeLiteral(s string) string {
	return literalUnescaper.Replace(s)
}
