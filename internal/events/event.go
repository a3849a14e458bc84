// Package events publishes a record of every completed ingest run.
package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const EventVersion = 1

type IngestEvent struct {
	Version          int       `json:"version"`
	RunID            string    `json:"run_id,omitempty"`
	Collection       string    `json:"collection"`
	Endpoint         string    `json:"endpoint"`
	QueryHash        string    `json:"query_hash"`
	Rows             int       `json:"rows"`
	GeometryFailures int       `json:"geometry_failures"`
	Written          int       `json:"written"`
	Rejected         int       `json:"rejected"`
	Nullified        int       `json:"nullified"`
	TS               time.Time `json:"ts"`
}

// QueryHash is the hex xxhash64 of the verbatim query text.
func QueryHash(query string) string {
	return strconv.FormatUint(xxhash.Sum64String(query), 16)
}

func (e IngestEvent) Validate() error {
	if e.Version != EventVersion {
		return fmt.Errorf("version must be %d", EventVersion)
	}
	if strings.TrimSpace(e.Collection) == "" {
		return fmt.Errorf("collection is required")
	}
	if e.QueryHash == "" {
		return fmt.Errorf("query_hash is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Rows < 0 || e.Written < 0 || e.Rejected < 0 || e.Nullified < 0 || e.GeometryFailures < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	if e.Written+e.Rejected > e.Rows {
		return fmt.Errorf("written+rejected exceeds rows")
	}
	return nil
}
