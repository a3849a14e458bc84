package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/Jimkik/GeoData-Project/internal/app"
	"github.com/Jimkik/GeoData-Project/internal/core/config"
	"github.com/Jimkik/GeoData-Project/internal/logger"
)

type Options struct {
	Query      string `short:"q" long:"query"      description:"SPARQL query text"`
	QueryFile  string `short:"f" long:"query-file" description:"Read the SPARQL query from a file (- for stdin)"`
	EnvFile    string `short:"e" long:"env-file"   description:"Environment file to load" default:".env"`
	Endpoint   string `long:"endpoint"             env:"SPARQL_ENDPOINT" description:"SPARQL endpoint URL"`
	Format     string `long:"format"               description:"Result transport (json|csv|tsv)"`
	Store      string `long:"store"                description:"Store driver (redis|mongo)"`
	Collection string `long:"collection"           description:"Target collection"`
	Mapping    string `short:"m" long:"mapping"    description:"Schema mapping YAML file"`
	Policy     string `long:"write-policy"         description:"Invalid geometry handling (drop|nullify)"`
	Verbose    bool   `short:"v" long:"verbose"    description:"Debug logging"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	os.Exit(run(opts))
}

func run(opts Options) int {
	_ = godotenv.Load(opts.EnvFile)
	cfg := applyOptions(config.FromEnv(), opts)

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "geoingest",
	}, os.Stderr)
	appLog := logger.NewSlog(&zl)

	query, err := readQuery(opts)
	if err != nil {
		appLog.Error("no query", "err", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("setup failed", "err", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	rep, err := a.Ingestor.Run(ctx, query)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if err != nil {
		appLog.Error("ingest failed", "err", err)
		return 1
	}
	return 0
}

func applyOptions(cfg config.Config, opts Options) config.Config {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.SPARQLEndpoint, opts.Endpoint)
	set(&cfg.SPARQLFormat, opts.Format)
	set(&cfg.StoreDriver, strings.ToLower(opts.Store))
	set(&cfg.Collection, opts.Collection)
	set(&cfg.SchemaMappingFile, opts.Mapping)
	set(&cfg.WritePolicy, strings.ToLower(opts.Policy))
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func readQuery(opts Options) (string, error) {
	q := opts.Query
	switch {
	case opts.QueryFile == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		q = string(b)
	case opts.QueryFile != "":
		b, err := os.ReadFile(opts.QueryFile)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		q = string(b)
	}
	if strings.TrimSpace(q) == "" {
		return "", fmt.Errorf("use --query or --query-file")
	}
	return q, nil
}
