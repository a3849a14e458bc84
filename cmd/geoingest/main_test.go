package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"

	"github.com/Jimkik/GeoData-Project/internal/core/config"
)

func TestApplyOptions(t *testing.T) {
	var opts Options
	if _, err := flags.ParseArgs(&opts, []string{"--store", "MONGO", "--collection", "c1", "--write-policy", "nullify", "-v"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := applyOptions(config.Config{StoreDriver: "redis", Collection: "geo_features", LogLevel: "info"}, opts)
	if cfg.StoreDriver != "mongo" || cfg.Collection != "c1" || cfg.WritePolicy != "nullify" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if opts.EnvFile != ".env" {
		t.Fatalf("env-file default=%q", opts.EnvFile)
	}
}

func TestReadQuery(t *testing.T) {
	if _, err := readQuery(Options{}); err == nil {
		t.Fatalf("missing query must fail")
	}
	q, err := readQuery(Options{Query: "SELECT 1"})
	if err != nil || q != "SELECT 1" {
		t.Fatalf("q=%q err=%v", q, err)
	}

	p := filepath.Join(t.TempDir(), "q.rq")
	if err := os.WriteFile(p, []byte("SELECT ?s WHERE { ?s ?p ?o }"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	q, err = readQuery(Options{Query: "ignored", QueryFile: p})
	if err != nil || q != "SELECT ?s WHERE { ?s ?p ?o }" {
		t.Fatalf("file q=%q err=%v", q, err)
	}
}
