// Package pipeline wires the write path (query, map, validate, store) and the
// read path (store, layers) together.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jimkik/GeoData-Project/internal/core/executor"
	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
	obs "github.com/Jimkik/GeoData-Project/internal/core/observability"
	"github.com/Jimkik/GeoData-Project/internal/events"
	mylog "github.com/Jimkik/GeoData-Project/internal/logger"
	"github.com/Jimkik/GeoData-Project/internal/store"
)

type RowMapper interface {
	Map(row model.Row, query string) model.FeatureDocument
}

type BatchWriter interface {
	WriteBatch(ctx context.Context, docs []model.FeatureDocument) (store.WriteResult, error)
	Collection() string
}

type Report struct {
	RunID            string        `json:"run_id"`
	Rows             int           `json:"rows"`
	GeometryFailures int           `json:"geometry_failures"`
	Written          int           `json:"written"`
	Rejected         int           `json:"rejected"`
	Nullified        int           `json:"nullified"`
	Duration         time.Duration `json:"duration_ns"`
}

type Ingestor struct {
	exec      executor.Interface
	mapper    RowMapper
	writer    BatchWriter
	publisher events.Publisher
	logger    *slog.Logger
	workers   int
	now       func() time.Time
}

type Option func(*Ingestor)

func WithPublisher(p events.Publisher) Option {
	return func(in *Ingestor) {
		if p != nil {
			in.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithWorkers bounds concurrent row mapping. Values below 1 mean NumCPU.
func WithWorkers(n int) Option {
	return func(in *Ingestor) { in.workers = n }
}

func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) { in.now = now }
}

func NewIngestor(exec executor.Interface, m RowMapper, w BatchWriter, opts ...Option) *Ingestor {
	in := &Ingestor{
		exec:      exec,
		mapper:    m,
		writer:    w,
		publisher: events.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(in)
	}
	if in.workers < 1 {
		in.workers = runtime.NumCPU()
	}
	return in
}

// Run executes query, maps every row and writes the accepted documents as one
// batch. Nothing is written when the query fails or ctx is done before the
// write starts.
func (in *Ingestor) Run(ctx context.Context, query string) (Report, error) {
	start := in.now()
	runID := mylog.RunID(ctx)
	if runID == "" {
		runID = mylog.NewID()
		ctx = mylog.WithRunID(ctx, runID)
	}
	rep := Report{RunID: runID}

	rs, err := in.exec.Execute(ctx, query)
	if err != nil {
		in.logger.ErrorContext(ctx, "sparql query failed", "endpoint", in.exec.Endpoint(), "err", err)
		return rep, fmt.Errorf("execute query: %w", err)
	}
	rep.Rows = len(rs.Rows)

	docs, err := in.mapRows(ctx, rs.Rows, query)
	if err != nil {
		return rep, fmt.Errorf("map rows: %w", err)
	}
	obs.AddIngestRows("mapped", len(docs))

	for i, d := range docs {
		if d.Geometry.State() != model.GeometryInvalid {
			continue
		}
		rep.GeometryFailures++
		reason := ogc.FailureReason(d.Geometry.Err())
		obs.IncGeometryDecodeFailure(reason)
		in.logger.WarnContext(ctx, "geometry decode failed",
			"row", i,
			"name", d.Name,
			"reason", reason,
			"err", d.Geometry.Err(),
			"raw", truncate(d.Geometry.Raw(), 120))
	}

	if err := ctx.Err(); err != nil {
		in.logger.WarnContext(ctx, "ingest cancelled before write", "rows", rep.Rows)
		return rep, fmt.Errorf("ingest cancelled before write: %w", err)
	}

	res, err := in.writer.WriteBatch(ctx, docs)
	rep.Written, rep.Rejected, rep.Nullified = res.Accepted, res.Rejected, res.Nullified
	obs.AddIngestRows("written", res.Accepted)
	obs.AddIngestRows("rejected", res.Rejected)
	rep.Duration = in.now().Sub(start)
	if err != nil {
		in.logger.ErrorContext(ctx, "write batch failed",
			"collection", in.writer.Collection(),
			"accepted", res.Accepted,
			"err", err)
		return rep, fmt.Errorf("write batch: %w", err)
	}

	in.publish(ctx, query, rep)
	in.logger.InfoContext(ctx, "ingest done",
		"collection", in.writer.Collection(),
		"rows", rep.Rows,
		"written", rep.Written,
		"rejected", rep.Rejected,
		"nullified", rep.Nullified,
		"geometry_failures", rep.GeometryFailures,
		"duration", rep.Duration.String())
	return rep, nil
}

func (in *Ingestor) mapRows(ctx context.Context, rows []model.Row, query string) ([]model.FeatureDocument, error) {
	docs := make([]model.FeatureDocument, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = in.mapper.Map(row, query)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (in *Ingestor) publish(ctx context.Context, query string, rep Report) {
	ev := events.IngestEvent{
		Version:          events.EventVersion,
		RunID:            rep.RunID,
		Collection:       in.writer.Collection(),
		Endpoint:         in.exec.Endpoint(),
		QueryHash:        events.QueryHash(query),
		Rows:             rep.Rows,
		GeometryFailures: rep.GeometryFailures,
		Written:          rep.Written,
		Rejected:         rep.Rejected,
		Nullified:        rep.Nullified,
		TS:               in.now().UTC(),
	}
	if err := in.publisher.Publish(ctx, ev); err != nil {
		in.logger.WarnContext(ctx, "ingest event not published", "err", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
