// Package app builds the process-wide object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Jimkik/GeoData-Project/internal/core/config"
	"github.com/Jimkik/GeoData-Project/internal/core/executor"
	"github.com/Jimkik/GeoData-Project/internal/core/health"
	"github.com/Jimkik/GeoData-Project/internal/core/httpclient"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
	"github.com/Jimkik/GeoData-Project/internal/core/router"
	"github.com/Jimkik/GeoData-Project/internal/events"
	"github.com/Jimkik/GeoData-Project/internal/layers"
	h3mapper "github.com/Jimkik/GeoData-Project/internal/mapper/h3"
	"github.com/Jimkik/GeoData-Project/internal/mapper/schema"
	"github.com/Jimkik/GeoData-Project/internal/pipeline"
	"github.com/Jimkik/GeoData-Project/internal/render"
	"github.com/Jimkik/GeoData-Project/internal/store"
	"github.com/Jimkik/GeoData-Project/internal/store/featurestore"
	"github.com/Jimkik/GeoData-Project/internal/store/mongostore"
	"github.com/Jimkik/GeoData-Project/internal/store/redisstore"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Ingestor *pipeline.Ingestor
	Maps     *pipeline.MapService
	Store    *store.Adapter
	HTML     *render.HTML

	cells   router.CellFinder
	ready   []health.Check
	closers []func() error
}

// New connects the configured store and event publisher once and wires the
// write and read paths on top of them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	mapping, err := config.LoadMapping(cfg.SchemaMappingFile)
	if err != nil {
		return nil, err
	}
	unmapped, err := schema.ParseUnmappedPolicy(cfg.UnmappedPolicy)
	if err != nil {
		return nil, err
	}
	policy, err := store.ParseWritePolicy(cfg.WritePolicy)
	if err != nil {
		return nil, err
	}
	classifier, err := layers.ParseStrategy(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	exec, err := executor.New(logger, httpclient.NewOutbound(cfg.QueryTimeout), cfg.SPARQLEndpoint,
		executor.WithFormat(cfg.SPARQLFormat),
		executor.WithTimeout(cfg.QueryTimeout))
	if err != nil {
		return nil, fmt.Errorf("sparql executor: %w", err)
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store.NewAdapter(backend, cfg.Collection, policy, logger)

	pub, err := a.openPublisher()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	m := schema.New(mapping,
		schema.WithDecoder(ogc.NewDecodeCache(cfg.DecodeCacheSize)),
		schema.WithUnmappedPolicy(unmapped),
		schema.WithEndpoint(exec.Endpoint()))
	a.Ingestor = pipeline.NewIngestor(exec, m, a.Store,
		pipeline.WithPublisher(pub),
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.DecodeWorkers))
	a.Maps = pipeline.NewMapService(a.Store, layers.NewBuilder(classifier, layers.WithLogger(logger)), logger)

	a.HTML, err = render.NewHTML()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("app ready",
		"store", backend.Name(),
		"collection", cfg.Collection,
		"write_policy", policy.String(),
		"unmapped_policy", unmapped.String(),
		"classifier", classifier.Name(),
		"sparql_format", exec.Format(),
		"mapping_entries", mapping.Len(),
		"events", cfg.Events.Enabled)
	return a, nil
}

func (a *App) openBackend(ctx context.Context) (store.Backend, error) {
	cfg := a.Config
	switch cfg.StoreDriver {
	case "", "redis":
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		a.closers = append(a.closers, cli.Close)
		a.ready = append(a.ready, health.Check{Name: "redis", Ping: cli.Ping})
		fs := featurestore.New(cli,
			featurestore.WithCellIndex(h3mapper.New(), cfg.H3Res),
			featurestore.WithLogger(a.Logger))
		a.cells = fs
		return fs, nil
	case "mongo", "mongodb":
		cli, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("mongo store: %w", err)
		}
		a.closers = append(a.closers, func() error { return cli.Disconnect(context.Background()) })
		a.ready = append(a.ready, health.Check{Name: "mongo", Ping: func(ctx context.Context) error {
			return cli.Ping(ctx, readpref.Primary())
		}})
		return mongostore.New(cli, cfg.MongoDatabase), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want redis|mongo)", cfg.StoreDriver)
	}
}

func (a *App) openPublisher() (events.Publisher, error) {
	if !a.Config.Events.Enabled {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(events.Config{
		Brokers: a.Config.Events.Brokers,
		Topic:   a.Config.Events.Topic,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("ingest events: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// Handler returns the HTTP surface. metrics may be nil.
func (a *App) Handler(metrics http.Handler) http.Handler {
	return router.New(a.Logger, router.Deps{
		Ingester:   a.Ingestor,
		Maps:       a.Maps,
		HTML:       a.HTML,
		Cells:      a.cells,
		Collection: a.Config.Collection,
		Metrics:    metrics,
		Ready:      a.ready,
	})
}

// Close releases the connections opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
