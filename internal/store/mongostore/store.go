// Package mongostore is the MongoDB document store backend.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/ogc"
)

// Connect opens the process-wide client and checks it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return cli, nil
}

type Store struct {
	db *mongo.Database
}

func New(cli *mongo.Client, database string) *Store {
	return &Store{db: cli.Database(database)}
}

func (s *Store) Name() string { return "mongo" }

// InsertMany issues one unordered insert. When the server rejects some of the
// documents the others are still written and counted.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []model.FeatureDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		md, err := toMongo(d)
		if err != nil {
			return 0, err
		}
		batch[i] = md
	}

	_, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err != nil {
		return acceptedOnError(err, len(docs)), fmt.Errorf("mongo insert %d docs into %s: %w", len(docs), collection, err)
	}
	return len(docs), nil
}

// acceptedOnError counts the documents a failed insert still wrote. Only
// per-document write errors are partial; anything else wrote nothing we can
// vouch for.
func acceptedOnError(err error, n int) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0
	}
	return max(n-len(bwe.WriteErrors), 0)
}

func (s *Store) FindAll(ctx context.Context, collection string) ([]model.FeatureDocument, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", collection, err)
	}
	var raw []mongoDoc
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo read %s: %w", collection, err)
	}
	out := make([]model.FeatureDocument, 0, len(raw))
	for _, md := range raw {
		out = append(out, fromMongo(md))
	}
	return out, nil
}

// mongoDoc is the stored shape: colors are kept flat, the way earlier
// versions of the collection were written.
type mongoDoc struct {
	ID             any            `bson:"_id,omitempty"`
	Name           string         `bson:"name"`
	Description    string         `bson:"description,omitempty"`
	Geometry       *mongoGeometry `bson:"geometry,omitempty"`
	BoundaryColor  string         `bson:"boundaryColor,omitempty"`
	FillColor      string         `bson:"fillColor,omitempty"`
	PointImage     string         `bson:"pointImage,omitempty"`
	SourceEndpoint string         `bson:"sourceEndpoint,omitempty"`
	RetrievalQuery string         `bson:"retrievalQuery"`
	Data           []mongoData    `bson:"data,omitempty"`
	CreatedDate    time.Time      `bson:"createdDate"`
	LastUpdated    time.Time      `bson:"lastUpdated"`
	Layers         []string       `bson:"layers,omitempty"`
	Maps           []string       `bson:"maps,omitempty"`
	Extra          map[string]any `bson:",inline"`
}

type mongoGeometry struct {
	Type        string `bson:"type"`
	Coordinates any    `bson:"coordinates"`
}

type mongoData struct {
	Name        string `bson:"name"`
	Value       string `bson:"value"`
	Type        string `bson:"type,omitempty"`
	Unit        string `bson:"unit,omitempty"`
	Description string `bson:"description,omitempty"`
	Source      string `bson:"source,omitempty"`
}

var flatColorKeys = map[string]struct{}{"boundaryColor": {}, "fillColor": {}, "pointImage": {}}

func toMongo(d model.FeatureDocument) (mongoDoc, error) {
	md := mongoDoc{
		Name:           d.Name,
		Description:    d.Description,
		BoundaryColor:  d.Colors.Boundary,
		FillColor:      d.Colors.Fill,
		PointImage:     d.Colors.PointImage,
		SourceEndpoint: d.SourceEndpoint,
		RetrievalQuery: d.RetrievalQuery,
		CreatedDate:    d.CreatedDate,
		LastUpdated:    d.LastUpdated,
		Layers:         d.Layers,
		Maps:           d.Maps,
	}
	if d.ID != "" {
		md.ID = d.ID
	}
	if g := d.Geometry.Geometry(); g != nil {
		mg, err := geometryToMongo(g)
		if err != nil {
			return mongoDoc{}, err
		}
		md.Geometry = mg
	}
	for _, e := range d.Data {
		md.Data = append(md.Data, mongoData(e))
	}
	for k, v := range d.Properties {
		if model.IsReservedKey(k) {
			continue
		}
		if _, ok := flatColorKeys[k]; ok {
			continue
		}
		if md.Extra == nil {
			md.Extra = map[string]any{}
		}
		md.Extra[k] = v
	}
	return md, nil
}

// geometryToMongo stores coordinates as plain nested arrays so the field stays
// usable by a 2dsphere index.
func geometryToMongo(g *geojson.Geometry) (*mongoGeometry, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	var plain struct {
		Type        string `json:"type"`
		Coordinates any    `json:"coordinates"`
	}
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return &mongoGeometry{Type: plain.Type, Coordinates: plain.Coordinates}, nil
}

func fromMongo(md mongoDoc) model.FeatureDocument {
	d := model.FeatureDocument{
		ID:             idString(md.ID),
		Name:           md.Name,
		Description:    md.Description,
		Colors:         model.Colors{Boundary: md.BoundaryColor, Fill: md.FillColor, PointImage: md.PointImage},
		SourceEndpoint: md.SourceEndpoint,
		RetrievalQuery: md.RetrievalQuery,
		CreatedDate:    md.CreatedDate,
		LastUpdated:    md.LastUpdated,
		Layers:         md.Layers,
		Maps:           md.Maps,
		Geometry:       geometryFromMongo(md.Geometry),
	}
	for _, e := range md.Data {
		d.Data = append(d.Data, model.DataEntry(e))
	}
	for k, v := range md.Extra {
		if model.IsReservedKey(k) {
			continue
		}
		if d.Properties == nil {
			d.Properties = map[string]any{}
		}
		d.Properties[k] = v
	}
	return d
}

func geometryFromMongo(mg *mongoGeometry) model.GeometryField {
	if mg == nil {
		return model.NoGeometry()
	}
	b, err := json.Marshal(map[string]any{"type": mg.Type, "coordinates": mg.Coordinates})
	if err != nil || !ogc.IsValid(b) {
		return model.InvalidGeometry(string(b))
	}
	var g geojson.Geometry
	if err := json.Unmarshal(b, &g); err != nil {
		return model.InvalidGeometry(string(b))
	}
	return model.ValidGeometry(&g)
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}
