package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/tokenizer"
)

var ErrDocumentExists = errors.New("document already exists")

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Document is the unit handed to the index. Text fields are tokenized and
// indexed with positions; keyword fields are indexed as a single term without
// positions and also kept as a doc value; the remaining maps only produce doc
// values.
type Document struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Relation string               `json:"relation,omitempty"`
	Parent   string               `json:"parent,omitempty"`
	Text     map[string]string    `json:"text,omitempty"`
	Keywords map[string]string    `json:"keywords,omitempty"`
	Numbers  map[string]float64   `json:"numbers,omitempty"`
	Dates    map[string]time.Time `json:"dates,omitempty"`
	Geo      map[string]GeoPoint  `json:"geo,omitempty"`
}

// StoredDoc is the per-document data kept next to the postings.
type StoredDoc struct {
	ID       string           `json:"id"`
	Type     string           `json:"type,omitempty"`
	Relation string           `json:"relation,omitempty"`
	Parent   string           `json:"parent,omitempty"`
	Values   map[string]Value `json:"values,omitempty"`
	Lengths  map[string]int   `json:"lengths,omitempty"`
}

// Snapshot is a point-in-time copy of a MemoryIndex, ordered for writing to
// a segment.
type Snapshot struct {
	Terms  []TermEntry
	Docs   []StoredDoc
	Fields map[string]FieldInfo
}

// MemoryIndex is a mutable positional inverted index. DocIDs are assigned
// densely in insertion order, so appending to a posting list keeps it sorted.
type MemoryIndex struct {
	mu     sync.RWMutex
	index  map[string]map[string]PostingList
	fields map[string]*FieldInfo
	docs   []StoredDoc
	ids    map[string]DocID
	size   int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:  make(map[string]map[string]PostingList),
		fields: make(map[string]*FieldInfo),
		ids:    make(map[string]DocID),
	}
}

// AddDocument indexes doc and returns the DocID it was assigned.
func (m *MemoryIndex) AddDocument(doc Document) (DocID, error) {
	if doc.ID == "" {
		return 0, fmt.Errorf("document id is required")
	}
	stored := StoredDoc{
		ID:       doc.ID,
		Type:     doc.Type,
		Relation: doc.Relation,
		Parent:   doc.Parent,
		Values:   make(map[string]Value),
		Lengths:  make(map[string]int),
	}
	type fieldTerms struct {
		positions bool
		terms     map[string]*Posting
	}
	perField := make(map[string]*fieldTerms)
	for field, text := range doc.Text {
		ft := &fieldTerms{positions: true, terms: make(map[string]*Posting)}
		tokens := tokenizer.Tokenize(text)
		for _, token := range tokens {
			p, exists := ft.terms[token.Term]
			if !exists {
				p = &Posting{Positions: make([]int, 0, 4)}
				ft.terms[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
		perField[field] = ft
		stored.Lengths[field] = len(tokens)
	}
	keywords := make(map[string]string, len(doc.Keywords)+1)
	for field, kw := range doc.Keywords {
		keywords[field] = kw
	}
	if doc.Type != "" {
		keywords[TypeField] = doc.Type
	}
	for field, kw := range keywords {
		perField[field] = &fieldTerms{terms: map[string]*Posting{kw: {Frequency: 1}}}
		stored.Values[field] = Keyword(kw)
		stored.Lengths[field] = 1
	}
	for field, n := range doc.Numbers {
		stored.Values[field] = Number(n)
	}
	for field, d := range doc.Dates {
		stored.Values[field] = Date(d)
	}
	for field, g := range doc.Geo {
		stored.Values[field] = Geo(g.Lat, g.Lon)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ids[doc.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDocumentExists, doc.ID)
	}
	id := DocID(len(m.docs))
	for field, ft := range perField {
		info, ok := m.fields[field]
		if !ok {
			info = &FieldInfo{Positions: ft.positions}
			m.fields[field] = info
		}
		info.DocCount++
		info.SumLength += stored.Lengths[field]
		terms, ok := m.index[field]
		if !ok {
			terms = make(map[string]PostingList)
			m.index[field] = terms
		}
		for term, posting := range ft.terms {
			posting.DocID = id
			terms[term] = append(terms[term], *posting)
			m.size += int64(len(term) + len(posting.Positions)*8 + 16)
		}
	}
	m.docs = append(m.docs, stored)
	m.ids[doc.ID] = id
	m.size += int64(len(doc.ID) + 64)
	return id, nil
}

func (m *MemoryIndex) Postings(ctx context.Context, field, term string) (PostingIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings := m.index[field][term]
	// Appends after this point never touch the returned prefix.
	return NewSliceIterator(postings[:len(postings):len(postings)]), nil
}

func (m *MemoryIndex) FieldInfo(field string) (FieldInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.fields[field]
	if !ok {
		return FieldInfo{}, false
	}
	return *info, true
}

func (m *MemoryIndex) FieldValue(doc DocID, field string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(doc) >= len(m.docs) {
		return Value{}, false
	}
	v, ok := m.docs[doc].Values[field]
	return v, ok
}

func (m *MemoryIndex) ParentOf(doc DocID, relation string) (DocID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(doc) >= len(m.docs) {
		return 0, false
	}
	d := m.docs[doc]
	if d.Parent == "" || d.Relation != relation {
		return 0, false
	}
	parent, ok := m.ids[d.Parent]
	return parent, ok
}

func (m *MemoryIndex) DocFreq(field, term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index[field][term])
}

func (m *MemoryIndex) FieldLength(doc DocID, field string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(doc) >= len(m.docs) {
		return 0
	}
	return m.docs[doc].Lengths[field]
}

func (m *MemoryIndex) AvgFieldLength(field string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.fields[field]
	if !ok || info.DocCount == 0 {
		return 0
	}
	return float64(info.SumLength) / float64(info.DocCount)
}

func (m *MemoryIndex) MaxDoc() DocID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DocID(len(m.docs))
}

func (m *MemoryIndex) ExternalID(doc DocID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(doc) >= len(m.docs) {
		return ""
	}
	return m.docs[doc].ID
}

func (m *MemoryIndex) LookupID(externalID string) (DocID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[externalID]
	return id, ok
}

// Snapshot copies the index into a form suitable for a segment writer. Terms
// are sorted by (field, term).
func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for field, terms := range m.index {
		for term, postings := range terms {
			cp := make(PostingList, len(postings))
			copy(cp, postings)
			entries = append(entries, TermEntry{
				Field:    field,
				Term:     term,
				Postings: cp,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
	docs := make([]StoredDoc, len(m.docs))
	copy(docs, m.docs)
	fields := make(map[string]FieldInfo, len(m.fields))
	for name, info := range m.fields {
		fields[name] = *info
	}
	return Snapshot{Terms: entries, Docs: docs, Fields: fields}
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// FromSnapshot rebuilds a MemoryIndex from a snapshot, keeping the DocIDs it
// was taken with.
func FromSnapshot(snap Snapshot) (*MemoryIndex, error) {
	m := NewMemoryIndex()
	m.docs = make([]StoredDoc, len(snap.Docs))
	copy(m.docs, snap.Docs)
	for i, d := range m.docs {
		if _, dup := m.ids[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDocumentExists, d.ID)
		}
		m.ids[d.ID] = DocID(i)
		m.size += int64(len(d.ID) + 64)
	}
	for name, info := range snap.Fields {
		info := info
		m.fields[name] = &info
	}
	for _, entry := range snap.Terms {
		terms, ok := m.index[entry.Field]
		if !ok {
			terms = make(map[string]PostingList)
			m.index[entry.Field] = terms
		}
		postings := make(PostingList, len(entry.Postings))
		copy(postings, entry.Postings)
		for _, p := range postings {
			if int(p.DocID) >= len(m.docs) {
				return nil, fmt.Errorf("posting for %s:%s references doc %d beyond %d docs", entry.Field, entry.Term, p.DocID, len(m.docs))
			}
			m.size += int64(len(entry.Term) + len(p.Positions)*8 + 16)
		}
		terms[entry.Term] = postings
	}
	return m, nil
}
