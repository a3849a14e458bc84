// Package executor runs SPARQL queries against a remote endpoint and parses
// the result transport into raw rows.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/observability"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

type Interface interface {
	Execute(ctx context.Context, query string) (model.ResultSet, error)
	Endpoint() string
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
	format   string
	timeout  time.Duration
	startNow func() time.Time // for tests
}

type Option func(*Executor)

// WithFormat selects the result transport (see ogc.NormalizeFormat).
func WithFormat(f string) Option {
	return func(e *Executor) { e.format = ogc.NormalizeFormat(f) }
}

// WithTimeout bounds a single query round trip. Zero leaves only the client
// timeout in place.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

func New(logger *slog.Logger, client *http.Client, endpoint string, opts ...Option) (*Executor, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse sparql endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sparql endpoint %q must be an absolute URL", endpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	e := &Executor{
		logger:   logger,
		client:   client,
		endpoint: u,
		format:   ogc.FormatSPARQLJSON,
		startNow: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Executor) Endpoint() string { return e.endpoint.String() }

func (e *Executor) Format() string { return e.format }

// Execute issues exactly one GET for query and returns the parsed rows. It
// never retries.
func (e *Executor) Execute(ctx context.Context, query string) (model.ResultSet, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	u := *e.endpoint
	params := u.Query()
	for k, vs := range ogc.BuildQueryParamsFormat(query, e.format) {
		params[k] = vs
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.ResultSet{}, &QueryError{Endpoint: e.Endpoint(), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", e.format)

	e.logger.DebugContext(ctx, "sparql query",
		"endpoint", e.Endpoint(),
		"format", e.format,
		"query_len", len(query))

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		observability.ObserveUpstream("sparql", "error", time.Since(start).Seconds())
		return model.ResultSet{}, &QueryError{Endpoint: e.Endpoint(), Err: fmt.Errorf("do request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.ObserveUpstream("sparql", "status", time.Since(start).Seconds())
		return model.ResultSet{}, &QueryError{Endpoint: e.Endpoint(), Status: resp.StatusCode, Body: string(b)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveUpstream("sparql", "error", time.Since(start).Seconds())
		return model.ResultSet{}, &QueryError{Endpoint: e.Endpoint(), Err: fmt.Errorf("read body: %w", err)}
	}
	dur := time.Since(start)
	observability.ObserveUpstream("sparql", "ok", dur.Seconds())

	rs, err := Parse(e.format, body)
	if err != nil {
		var tpe *TransportParseError
		if !errors.As(err, &tpe) {
			err = &TransportParseError{Format: e.format, Err: err}
		}
		return model.ResultSet{}, err
	}

	e.logger.DebugContext(ctx, "sparql query done",
		"status", resp.StatusCode,
		"rows", rs.Count,
		"duration", dur.String())
	return rs, nil
}
