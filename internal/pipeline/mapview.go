package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/layers"
)

type FeatureReader interface {
	ReadAll(ctx context.Context) ([]model.FeatureDocument, error)
}

// MapService builds a fresh LayeredMap from the store on every call.
type MapService struct {
	reader  FeatureReader
	builder *layers.Builder
	logger  *slog.Logger
}

func NewMapService(r FeatureReader, b *layers.Builder, logger *slog.Logger) *MapService {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = layers.NewBuilder(nil, layers.WithLogger(logger))
	}
	return &MapService{reader: r, builder: b, logger: logger}
}

func (s *MapService) Build(ctx context.Context) (layers.LayeredMap, error) {
	docs, err := s.reader.ReadAll(ctx)
	if err != nil {
		return layers.LayeredMap{}, fmt.Errorf("load features: %w", err)
	}
	m := s.builder.Build(docs)
	s.logger.DebugContext(ctx, "layered map built",
		"documents", len(docs),
		"features", m.FeatureCount(),
		"classifier", s.builder.Classifier().Name())
	return m, nil
}
