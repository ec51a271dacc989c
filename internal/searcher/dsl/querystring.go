package dsl

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

// ErrEmptyQueryString is returned for a query string without searchable
// words.
var ErrEmptyQueryString = errors.New("query string has no searchable terms")

type queryStringBody struct {
	common
	Query           string `json:"query"`
	Field           string `json:"field"`
	DefaultOperator string `json:"default_operator"`
}

func decodeQueryString(p *Parser, body json.RawMessage) (query.Node, error) {
	var b queryStringBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	if b.Field == "" {
		return nil, p.shapeError("simple_query_string requires a field")
	}
	or := true
	switch strings.ToUpper(b.DefaultOperator) {
	case "", "OR":
	case "AND":
		or = false
	default:
		return nil, p.shapeError("default_operator must be AND or OR, got %q", b.DefaultOperator)
	}
	n, err := ParseQueryString(b.Field, b.Query, or)
	if err != nil {
		return nil, p.shapeError("%v", err)
	}
	b.common.apply(&n.Common)
	return n, nil
}

// ParseQueryString turns a short boolean query such as
// `quick AND "brown fox" NOT dog` into a boolean query over field. Words
// are analyzed the way the indexer analyzes text; a quoted phrase becomes
// an ordered span near with no slop. AND and OR switch the operator for the
// whole query; NOT excludes the next word or phrase.
func ParseQueryString(field, text string, defaultOr bool) (*query.BooleanNode, error) {
	or := defaultOr
	var include, exclude []query.Node
	excludeNext := false
	for _, w := range splitQueryString(text) {
		if !w.phrase {
			switch strings.ToUpper(w.text) {
			case "AND":
				or = false
				continue
			case "OR":
				or = true
				continue
			case "NOT":
				excludeNext = true
				continue
			}
		}
		n := wordQuery(field, w)
		if n == nil {
			continue
		}
		if excludeNext {
			exclude = append(exclude, n)
			excludeNext = false
		} else {
			include = append(include, n)
		}
	}
	if len(include) == 0 && len(exclude) == 0 {
		return nil, ErrEmptyQueryString
	}

	occur := query.Must
	if or {
		occur = query.Should
	}
	b := query.Boolean()
	for _, n := range include {
		b.Clauses = append(b.Clauses, query.Clause{Occur: occur, Node: n})
	}
	for _, n := range exclude {
		b.Clauses = append(b.Clauses, query.Clause{Occur: query.MustNot, Node: n})
	}
	return b, nil
}

type word struct {
	text   string
	phrase bool
}

func splitQueryString(s string) []word {
	var out []word
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			break
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				out = append(out, word{text: s[1:], phrase: true})
				break
			}
			out = append(out, word{text: s[1 : end+1], phrase: true})
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t\r\n\"")
		if end < 0 {
			end = len(s)
		}
		out = append(out, word{text: s[:end]})
		s = s[end:]
	}
	return out
}

func wordQuery(field string, w word) query.Node {
	tokens := tokenizer.Tokenize(w.text)
	switch {
	case len(tokens) == 0:
		return nil
	case len(tokens) == 1:
		return query.Term(field, tokens[0].Term)
	case !w.phrase:
		// "e-mail" analyzes to two terms; both must appear.
		b := query.Boolean()
		for _, t := range tokens {
			b.Clauses = append(b.Clauses, query.Clause{Occur: query.Must, Node: query.Term(field, t.Term)})
		}
		return b
	}
	clauses := make([]*query.SpanNode, len(tokens))
	for i, t := range tokens {
		clauses[i] = query.SpanTermQuery(field, t.Term)
	}
	return query.SpanNearQuery(0, true, clauses...)
}
