// Package term matches single terms against the index and scores them.
package term

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

type Matcher struct {
	reader     index.Reader
	similarity ranker.Similarity
}

func NewMatcher(reader index.Reader, similarity ranker.Similarity) *Matcher {
	if similarity == nil {
		similarity = ranker.TF{}
	}
	return &Matcher{reader: reader, similarity: similarity}
}

func (m *Matcher) Reader() index.Reader { return m.reader }

// Match returns a lazy iterator over the postings of term in field, in
// ascending DocID order. When needPositions is set the field must have been
// indexed with positions.
func (m *Matcher) Match(ctx context.Context, field, term string, needPositions bool) (index.PostingIterator, error) {
	if needPositions {
		if info, ok := m.reader.FieldInfo(field); ok && !info.Positions {
			return nil, apperrors.NewQueryError(apperrors.ErrIndexAccess,
				"field %q was indexed without positions", field)
		}
	}
	it, err := m.reader.Postings(ctx, field, term)
	if err != nil {
		return nil, accessError(err, field, term)
	}
	return it, nil
}

// Evaluate scores every document containing the node's term:
// boost × similarity(tf).
func (m *Matcher) Evaluate(ctx context.Context, node *query.TermNode) (*matchset.MatchSet, error) {
	it, err := m.Match(ctx, node.Field, node.Term, false)
	if err != nil {
		return nil, err
	}
	stats := ranker.TermStats{
		TotalDocs:    int64(m.reader.MaxDoc()),
		DocFreq:      int64(m.reader.DocFreq(node.Field, node.Term)),
		AvgDocLength: m.reader.AvgFieldLength(node.Field),
	}
	deadline := query.NewDeadline(ctx)
	out := matchset.New()
	for it.Next() {
		if err := deadline.Check(); err != nil {
			return nil, err
		}
		p := it.Posting()
		score := m.similarity.Score(stats, p.Frequency, m.reader.FieldLength(p.DocID, node.Field))
		out.Add(p.DocID, node.Boost*score)
	}
	if err := it.Err(); err != nil {
		return nil, accessError(err, node.Field, node.Term)
	}
	return out, nil
}

func accessError(err error, field, term string) error {
	kind, ok := apperrors.ContextKind(err)
	if !ok {
		kind = apperrors.ErrIndexAccess
	}
	return apperrors.WrapQueryError(kind, err, "reading postings for %s:%s", field, term)
}
