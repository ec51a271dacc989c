package index

import (
	"context"
	"errors"
)

// TypeField is the reserved keyword field holding each document's type. It
// lets the join evaluator enumerate all documents of a type.
const TypeField = "_type"

// ErrUnknownDoc is returned when a DocID is outside the snapshot.
var ErrUnknownDoc = errors.New("unknown document")

// FieldInfo describes how a field was indexed.
type FieldInfo struct {
	Positions bool `json:"positions"`
	DocCount  int  `json:"doc_count"`
	SumLength int  `json:"sum_length"`
}

// Reader is the read-only view of one index snapshot consumed by the query
// engine. Implementations must be safe for concurrent use.
type Reader interface {
	// Postings returns the postings for term in field. A field or term that
	// does not exist yields an empty iterator, not an error.
	Postings(ctx context.Context, field, term string) (PostingIterator, error)
	FieldInfo(field string) (FieldInfo, bool)
	FieldValue(doc DocID, field string) (Value, bool)
	// ParentOf returns the parent of doc through the named relation.
	ParentOf(doc DocID, relation string) (DocID, bool)
	DocFreq(field, term string) int
	FieldLength(doc DocID, field string) int
	AvgFieldLength(field string) float64
	// MaxDoc is one past the largest DocID in the snapshot.
	MaxDoc() DocID
	ExternalID(doc DocID) string
	LookupID(externalID string) (DocID, bool)
}
