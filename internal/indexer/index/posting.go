package index

// DocID identifies a document within one index snapshot. IDs are dense and
// assigned in insertion order starting at zero.
type DocID uint32

// Posting is one document's entry in a term's posting list.
type Posting struct {
	DocID     DocID `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p,omitempty"`
}

type PostingList []Posting

// TermEntry is a (field, term) pair and its postings, ordered by DocID.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// PostingIterator walks a posting list once, in ascending DocID order.
type PostingIterator interface {
	// Next advances to the next posting. It returns false when the list is
	// exhausted or a read failed; Err distinguishes the two.
	Next() bool
	Posting() Posting
	Err() error
}

type sliceIterator struct {
	postings PostingList
	pos      int
}

// NewSliceIterator returns a PostingIterator over an in-memory list that is
// already sorted by DocID.
func NewSliceIterator(postings PostingList) PostingIterator {
	return &sliceIterator{postings: postings, pos: -1}
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.postings)
}

func (it *sliceIterator) Posting() Posting {
	return it.postings[it.pos]
}

func (it *sliceIterator) Err() error { return nil }

// Empty is a PostingIterator with no postings.
func Empty() PostingIterator {
	return NewSliceIterator(nil)
}
