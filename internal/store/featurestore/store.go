// Package featurestore is the Redis document store backend. Each batch is
// written in one MULTI/EXEC: the document JSON, the collection id set and one
// H3 cell set per cell the geometry touches.
package featurestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/mapper"
	"github.com/Jimkik/GeoData-Project/internal/store/keys"
	"github.com/Jimkik/GeoData-Project/internal/store/redisstore"
)

const mgetChunk = 256

type Store struct {
	cli    *redisstore.Client
	cells  mapper.Interface
	res    int
	newID  func() string
	logger *slog.Logger
}

type Option func(*Store)

// WithCellIndex enables the per-cell id sets at resolution res.
func WithCellIndex(m mapper.Interface, res int) Option {
	return func(s *Store) { s.cells, s.res = m, res }
}

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

func WithIDFunc(f func() string) Option { return func(s *Store) { s.newID = f } }

func New(cli *redisstore.Client, opts ...Option) *Store {
	s := &Store{cli: cli, newID: uuid.NewString, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Name() string { return "redis" }

type prepared struct {
	id    string
	body  []byte
	cells []string
}

func (s *Store) prepare(collection string, docs []model.FeatureDocument) ([]prepared, error) {
	out := make([]prepared, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = s.newID()
		}
		body, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode document %q: %w", d.Name, err)
		}
		p := prepared{id: d.ID, body: body}
		if g := d.Geometry.Geometry(); g != nil && s.cells != nil {
			cells, err := s.cells.CellsForGeometry(g.Geometry(), s.res)
			if err != nil {
				s.logger.Debug("document not cell indexed", "collection", collection, "id", d.ID, "err", err)
			}
			p.cells = cells
		}
		out = append(out, p)
	}
	return out, nil
}

// InsertMany writes docs atomically: either all of them are stored or none.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []model.FeatureDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch, err := s.prepare(collection, docs)
	if err != nil {
		return 0, err
	}

	setKey := keys.DocSet(collection)
	err = s.cli.Tx(ctx, "insert_many", func(p redis.Pipeliner) error {
		for _, d := range batch {
			p.Set(ctx, keys.Doc(collection, d.id), d.body, 0)
			p.SAdd(ctx, setKey, d.id)
			for _, c := range d.cells {
				p.SAdd(ctx, keys.Cell(collection, s.res, c), d.id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("featurestore insert %d docs: %w", len(batch), err)
	}
	return len(batch), nil
}

func (s *Store) FindAll(ctx context.Context, collection string) ([]model.FeatureDocument, error) {
	ids, err := s.cli.SMembers(ctx, keys.DocSet(collection))
	if err != nil {
		return nil, fmt.Errorf("featurestore list %s: %w", collection, err)
	}
	return s.load(ctx, collection, ids)
}

// FindByCell returns the documents indexed under cell. Cells at another
// resolution than the index are mapped onto it first.
func (s *Store) FindByCell(ctx context.Context, collection, cell string) ([]model.FeatureDocument, error) {
	if s.cells == nil {
		return nil, fmt.Errorf("featurestore: cell index disabled")
	}
	cells, err := s.cells.Normalize(cell, s.res)
	if err != nil {
		return nil, fmt.Errorf("featurestore cell %q: %w", cell, err)
	}
	setKeys := make([]string, len(cells))
	for i, c := range cells {
		setKeys[i] = keys.Cell(collection, s.res, c)
	}
	ids, err := s.cli.SUnion(ctx, setKeys...)
	if err != nil {
		return nil, fmt.Errorf("featurestore cell %q: %w", cell, err)
	}
	return s.load(ctx, collection, ids)
}

func (s *Store) load(ctx context.Context, collection string, ids []string) ([]model.FeatureDocument, error) {
	sort.Strings(ids)
	out := make([]model.FeatureDocument, 0, len(ids))
	for start := 0; start < len(ids); start += mgetChunk {
		end := min(start+mgetChunk, len(ids))
		chunk := ids[start:end]

		docKeys := make([]string, len(chunk))
		for i, id := range chunk {
			docKeys[i] = keys.Doc(collection, id)
		}
		raw, err := s.cli.MGet(ctx, docKeys)
		if err != nil {
			return nil, fmt.Errorf("featurestore load %s: %w", collection, err)
		}
		for i, k := range docKeys {
			b, ok := raw[k]
			if !ok {
				continue
			}
			var d model.FeatureDocument
			if err := json.Unmarshal(b, &d); err != nil {
				return nil, fmt.Errorf("featurestore decode %s: %w", k, err)
			}
			if d.ID == "" {
				d.ID = chunk[i]
			}
			out = append(out, d)
		}
	}
	return out, nil
}
