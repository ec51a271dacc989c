// Package ingestion accepts documents over HTTP, validates them and
// publishes them to the ingest topic consumed by the indexer.
package ingestion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

const (
	maxIDLength    = 255
	maxTypeLength  = 64
	maxTextLength  = 1 << 20
	maxFieldsTotal = 256
)

// ValidationError holds one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validate checks a document before it is published. The rules mirror what
// the index accepts, plus limits that keep a single message bounded.
func Validate(doc index.Document) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(doc.ID)
	switch {
	case id == "":
		errs["id"] = "id is required"
	case len(id) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(doc.Type) > maxTypeLength {
		errs["type"] = fmt.Sprintf("type must be at most %d characters", maxTypeLength)
	}
	if (doc.Relation == "") != (doc.Parent == "") {
		errs["parent"] = "relation and parent must be set together"
	}
	if doc.Parent != "" && doc.Parent == doc.ID {
		errs["parent"] = "a document cannot be its own parent"
	}

	total := len(doc.Text) + len(doc.Keywords) + len(doc.Numbers) + len(doc.Dates) + len(doc.Geo)
	if total == 0 {
		errs["fields"] = "document has no fields"
	} else if total > maxFieldsTotal {
		errs["fields"] = fmt.Sprintf("document has %d fields, at most %d allowed", total, maxFieldsTotal)
	}
	for field, text := range doc.Text {
		if len(text) > maxTextLength {
			errs["text."+field] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		}
	}
	for field, kw := range doc.Keywords {
		if kw == "" {
			errs["keywords."+field] = "keyword must not be empty"
		}
	}
	for field, n := range doc.Numbers {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			errs["numbers."+field] = "number must be finite"
		}
	}
	for field, g := range doc.Geo {
		if g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180 {
			errs["geo."+field] = "lat must be within [-90, 90] and lon within [-180, 180]"
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
