// Package config reads process configuration from the environment and the
// optional schema mapping file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
)

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	SPARQLEndpoint string
	SPARQLFormat   string
	QueryTimeout   time.Duration

	StoreDriver   string // redis | mongo
	RedisAddr     string
	MongoURI      string
	MongoDatabase string
	Collection    string

	WritePolicy       string // drop | nullify
	UnmappedPolicy    string // passthrough | drop
	Classifier        string // geometry | keyword
	SchemaMappingFile string

	H3Res           int
	DecodeCacheSize int
	DecodeWorkers   int

	Events  EventsCfg
	Metrics MetricsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}
	workers := getint("DECODE_WORKERS", runtime.NumCPU())
	if workers < 1 {
		workers = 1
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		SPARQLEndpoint: getenv("SPARQL_ENDPOINT", "http://localhost:7200/repositories/geo"),
		SPARQLFormat:   getenv("SPARQL_FORMAT", "application/sparql-results+json"),
		QueryTimeout:   getduration("QUERY_TIMEOUT", 30*time.Second),

		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", "redis")),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		MongoURI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getenv("MONGO_DATABASE", "geo_db"),
		Collection:    getenv("COLLECTION", "geo_features"),

		WritePolicy:       strings.ToLower(getenv("WRITE_POLICY", "drop")),
		UnmappedPolicy:    strings.ToLower(getenv("UNMAPPED_POLICY", "passthrough")),
		Classifier:        strings.ToLower(getenv("CLASSIFIER", "geometry")),
		SchemaMappingFile: getenv("SCHEMA_MAPPING_FILE", ""),

		H3Res:           res,
		DecodeCacheSize: getint("DECODE_CACHE_SIZE", 4096),
		DecodeWorkers:   workers,

		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "geo-ingest"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// DefaultMapping is used when no mapping file is configured.
func DefaultMapping() model.SchemaMapping {
	return model.NewSchemaMapping(
		"subject", "name",
		"predicate", "description",
		"object", "geometry",
		"wktLiteral", "geometry",
	)
}

type mappingFile struct {
	Mapping model.SchemaMapping `yaml:"mapping"`
}

// LoadMapping reads a YAML schema mapping. An empty path yields
// DefaultMapping.
func LoadMapping(path string) (model.SchemaMapping, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultMapping(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return model.SchemaMapping{}, fmt.Errorf("read schema mapping: %w", err)
	}
	var f mappingFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return model.SchemaMapping{}, fmt.Errorf("parse schema mapping %s: %w", path, err)
	}
	if f.Mapping.Len() == 0 {
		return model.SchemaMapping{}, fmt.Errorf("schema mapping %s has no entries", path)
	}
	return f.Mapping, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// "a:9092, b:9092" -> [a:9092 b:9092]
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
