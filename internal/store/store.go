// Package store persists FeatureDocuments. The Adapter enforces the geometry
// write policy; Backends only move bytes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jimkik/GeoData-Project/internal/core/model"
	"github.com/Jimkik/GeoData-Project/internal/core/observability"
)

// Backend is a document collection store. InsertMany appends; it never
// deduplicates or upserts. On failure it returns the number of documents the
// store reports as written, which is zero unless the store says otherwise.
type Backend interface {
	Name() string
	InsertMany(ctx context.Context, collection string, docs []model.FeatureDocument) (int, error)
	FindAll(ctx context.Context, collection string) ([]model.FeatureDocument, error)
}

type WritePolicy int

const (
	// DropInvalidDocument leaves documents with invalid geometry out of the
	// batch.
	DropInvalidDocument WritePolicy = iota
	// NullifyInvalidGeometry writes such documents without a geometry.
	NullifyInvalidGeometry
)

func (p WritePolicy) String() string {
	if p == NullifyInvalidGeometry {
		return "nullify"
	}
	return "drop"
}

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop", "drop-invalid":
		return DropInvalidDocument, nil
	case "nullify", "null-out", "nullify-invalid":
		return NullifyInvalidGeometry, nil
	default:
		return DropInvalidDocument, fmt.Errorf("unknown write policy %q", s)
	}
}

// Partition splits docs into the ones that may be written and the ones that
// may not. Under NullifyInvalidGeometry nothing is rejected; invalid
// geometries are cleared and counted in nullified.
func Partition(docs []model.FeatureDocument, policy WritePolicy) (accepted, rejected []model.FeatureDocument, nullified int) {
	accepted = make([]model.FeatureDocument, 0, len(docs))
	for _, d := range docs {
		switch d.Geometry.State() {
		case model.GeometryAbsent, model.GeometryValid:
			accepted = append(accepted, d)
		default:
			if policy == NullifyInvalidGeometry {
				accepted = append(accepted, d.WithoutGeometry())
				nullified++
				continue
			}
			rejected = append(rejected, d)
		}
	}
	return accepted, rejected, nullified
}

// WriteError reports a failed bulk insert. Accepted is what the store
// confirmed as written before failing.
type WriteError struct {
	Collection string
	Accepted   int
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %d accepted before failure: %v", e.Collection, e.Accepted, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type WriteResult struct {
	Accepted  int
	Rejected  int
	Nullified int
}

type Adapter struct {
	backend    Backend
	collection string
	policy     WritePolicy
	logger     *slog.Logger
}

func NewAdapter(b Backend, collection string, policy WritePolicy, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{backend: b, collection: collection, policy: policy, logger: logger}
}

func (a *Adapter) Collection() string  { return a.collection }
func (a *Adapter) Policy() WritePolicy { return a.policy }

// WriteBatch filters docs by the write policy and bulk inserts the rest in a
// single backend call.
func (a *Adapter) WriteBatch(ctx context.Context, docs []model.FeatureDocument) (WriteResult, error) {
	accepted, rejected, nullified := Partition(docs, a.policy)
	res := WriteResult{Rejected: len(rejected), Nullified: nullified}

	for _, d := range rejected {
		a.logger.DebugContext(ctx, "document rejected",
			"name", d.Name,
			"reason", "invalid geometry",
			"policy", a.policy.String())
	}
	if len(accepted) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, &WriteError{Collection: a.collection, Err: err}
	}

	start := time.Now()
	n, err := a.backend.InsertMany(ctx, a.collection, accepted)
	observability.ObserveStoreOp(a.backend.Name(), "insert_many", err, time.Since(start).Seconds())
	if err != nil {
		res.Accepted = n
		var we *WriteError
		if errors.As(err, &we) {
			return res, err
		}
		return res, &WriteError{Collection: a.collection, Accepted: n, Err: err}
	}
	res.Accepted = n
	return res, nil
}

// ReadAll returns every stored document, in no particular order.
func (a *Adapter) ReadAll(ctx context.Context) ([]model.FeatureDocument, error) {
	start := time.Now()
	docs, err := a.backend.FindAll(ctx, a.collection)
	observability.ObserveStoreOp(a.backend.Name(), "find_all", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.collection, err)
	}
	return docs, nil
}
