package ogc

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/geojson"
)

type cachedGeometry struct {
	literal string
	geom    *geojson.Geometry
	err     error
}

// DecodeCache memoizes DecodeGeoJSONErr per literal. Failed decodes are cached
// with their error as well. Returned geometries are shared and must not be mutated.
type DecodeCache struct {
	lru *lru.Cache[uint64, cachedGeometry]
}

func NewDecodeCache(size int) *DecodeCache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[uint64, cachedGeometry](size)
	return &DecodeCache{lru: c}
}

func (c *DecodeCache) DecodeGeoJSON(literal string) (*geojson.Geometry, error) {
	key := xxhash.Sum64String(literal)
	if v, ok := c.lru.Get(key); ok && v.literal == literal {
		return v.geom, v.err
	}
	g, err := DecodeGeoJSONErr(literal)
	c.lru.Add(key, cachedGeometry{literal: literal, geom: g, err: err})
	return g, err
}

func (c *DecodeCache) Len() int { return c.lru.Len() }
