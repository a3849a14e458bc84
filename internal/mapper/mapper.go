// Package mapper converts feature geometries into H3 cells for the spatial
// index kept next to stored documents.
package mapper

import "github.com/paulmach/orb"

type Interface interface {
	// CellsForGeometry returns the sorted, de-duplicated cells g touches.
	CellsForGeometry(g orb.Geometry, res int) ([]string, error)
	// Normalize maps a cell of any resolution onto cells at indexRes.
	Normalize(cell string, indexRes int) ([]string, error)
}
