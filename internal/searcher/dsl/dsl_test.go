package dsl

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/function"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func parse(t *testing.T, src string) query.Node {
	t.Helper()
	n, err := NewRegistry(WithClock(func() time.Time { return fixedNow })).ParseQuery([]byte(src))
	if err != nil {
		t.Fatalf("ParseQuery(%s): %v", src, err)
	}
	if err := query.Validate(n); err != nil {
		t.Fatalf("decoded tree does not validate: %v", err)
	}
	return n
}

func TestTerm(t *testing.T) {
	got := parse(t, `{"term": {"status": {"value": "open", "boost": 2, "_name": "s"}}}`)
	want := query.Term("status", "open")
	want.Boost = 2
	want.Name = "s"
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	short := parse(t, `{"term": {"year": 2024}}`).(*query.TermNode)
	if short.Term != "2024" || short.Boost != 1 {
		t.Errorf("short form = %+v", short)
	}
}

func TestBool(t *testing.T) {
	got := parse(t, `{"bool": {
		"should": [{"term": {"body": "fox"}}, {"term": {"body": "dog"}}],
		"must": {"term": {"status": "open"}},
		"must_not": [{"term": {"status": "closed"}}],
		"minimum_should_match": 1
	}}`).(*query.BooleanNode)

	occurs := make([]query.Occur, len(got.Clauses))
	for i, c := range got.Clauses {
		occurs[i] = c.Occur
	}
	want := []query.Occur{query.Must, query.Should, query.Should, query.MustNot}
	if !reflect.DeepEqual(occurs, want) {
		t.Errorf("occurs = %v, want %v", occurs, want)
	}
	if got.MinimumShouldMatch == nil || *got.MinimumShouldMatch != 1 {
		t.Errorf("minimum_should_match = %v", got.MinimumShouldMatch)
	}
}

func TestSpans(t *testing.T) {
	got := parse(t, `{"span_not": {
		"include": {"span_near": {"clauses": [
			{"span_term": {"body": "quick"}},
			{"span_or": {"clauses": [{"span_term": {"body": "fox"}}, {"span_term": {"body": "dog"}}]}}
		], "slop": 1}},
		"exclude": {"span_first": {"match": {"span_term": {"body": "lazy"}}, "end": 2}},
		"dist": 3
	}}`).(*query.SpanNode)

	if got.Op != query.SpanNot || got.Pre != 3 || got.Post != 3 {
		t.Fatalf("span_not = %+v", got)
	}
	near := got.Include
	if near.Op != query.SpanNear || near.Slop != 1 || !near.InOrder || len(near.Clauses) != 2 {
		t.Errorf("span_near = %+v", near)
	}
	if got.Exclude.Op != query.SpanFirst || got.Exclude.End != 2 {
		t.Errorf("span_first = %+v", got.Exclude)
	}

	within := parse(t, `{"span_within": {"big": {"span_term": {"body": "a"}}, "little": {"span_term": {"body": "b"}}}}`).(*query.SpanNode)
	if within.Op != query.SpanWithin || within.Big.Term != "a" || within.Little.Term != "b" {
		t.Errorf("span_within = %+v", within)
	}
}

func TestJoins(t *testing.T) {
	hc := parse(t, `{"has_child": {"parent_type": "question", "type": "answer",
		"query": {"match_all": {}}, "score_mode": "max", "min_children": 2}}`).(*query.JoinNode)
	if hc.Direction != query.ToParent || hc.ParentType != "question" || hc.ChildType != "answer" ||
		hc.ScoreMode != query.ScoreMax || hc.MinChildren != 2 {
		t.Errorf("has_child = %+v", hc)
	}

	hp := parse(t, `{"has_parent": {"parent_type": "question", "child_type": "answer",
		"query": {"ids": {"values": ["q1"]}}, "score": true}}`).(*query.JoinNode)
	if hp.Direction != query.ToChild || hp.ScoreMode != query.ScoreMax {
		t.Errorf("has_parent = %+v", hp)
	}

	nested := parse(t, `{"nested": {"parent_type": "question", "path": "answer",
		"query": {"term": {"body": "fox"}}}}`).(*query.JoinNode)
	if nested.Direction != query.ToParent || nested.ParentType != "question" ||
		nested.ChildType != "answer" || nested.ScoreMode != query.ScoreAvg {
		t.Errorf("nested = %+v", nested)
	}
}

func TestLeafQueries(t *testing.T) {
	r := parse(t, `{"range": {"published": {"gte": "2024-01-01", "lt": "now"}}}`).(*query.RangeNode)
	if r.GTE == nil || r.GTE.Kind != index.KindDate || r.LT == nil || !r.LT.Time().Equal(fixedNow) {
		t.Errorf("range = %+v", r)
	}

	d := parse(t, `{"dis_max": {"queries": [{"term": {"a": "x"}}, {"term": {"b": "x"}}], "tie_breaker": 0.3}}`).(*query.DisMaxNode)
	if len(d.Queries) != 2 || d.TieBreaker != 0.3 {
		t.Errorf("dis_max = %+v", d)
	}

	c := parse(t, `{"constant_score": {"filter": {"term": {"a": "x"}}, "boost": 4}}`).(*query.ConstantScoreNode)
	if c.Boost != 4 {
		t.Errorf("constant_score boost = %v", c.Boost)
	}
}

func TestFunctionScore(t *testing.T) {
	got := parse(t, `{"function_score": {
		"query": {"term": {"status": "open"}},
		"functions": [
			{"filter": {"term": {"tag": "promo"}}, "weight": 3},
			{"field_value_factor": {"field": "likes", "modifier": "log1p", "missing": 1}},
			{"gauss": {"published": {"origin": "now", "scale": "10d", "offset": "1d"}}},
			{"linear": {"location": {"origin": "52.5,13.4", "scale": "2km"}}},
			{"random_score": {"seed": "user-7"}, "weight": 0.5},
			{"script_score": {"script": {"source": "saturation", "params": {"field": "likes", "pivot": 10}}}}
		],
		"combine_mode": "sum",
		"max_score": 50
	}}`).(*query.FunctionScoreNode)

	if got.CombineMode != query.CombineSum || got.MaxScore == nil || *got.MaxScore != 50 {
		t.Errorf("node = %+v", got)
	}
	if len(got.Functions) != 6 {
		t.Fatalf("functions = %d, want 6", len(got.Functions))
	}
	if f := got.Functions[0]; f.Function != nil || f.Weight != 3 || f.Filter == nil {
		t.Errorf("weight entry = %+v", f)
	}
	fvf := got.Functions[1].Function.(function.FieldValueFactor)
	if fvf.Modifier != function.ModifierLog1p || fvf.Factor != 1 || *fvf.Missing != 1 {
		t.Errorf("field_value_factor = %+v", fvf)
	}
	gauss := got.Functions[2].Function.(function.Decay)
	if gauss.Scale != float64(10*24*time.Hour/time.Millisecond) || gauss.Offset != float64(24*time.Hour/time.Millisecond) {
		t.Errorf("gauss scale/offset = %v/%v", gauss.Scale, gauss.Offset)
	}
	if !gauss.Origin.Time().Equal(fixedNow) {
		t.Errorf("gauss origin = %v", gauss.Origin.Time())
	}
	linear := got.Functions[3].Function.(function.Decay)
	if linear.Origin.Kind != index.KindGeo || linear.Scale != 2000 {
		t.Errorf("linear = %+v", linear)
	}
	if got.Functions[4].Weight != 0.5 {
		t.Errorf("random weight = %v", got.Functions[4].Weight)
	}
	if _, ok := got.Functions[5].Function.(function.Script); !ok {
		t.Errorf("script entry = %T", got.Functions[5].Function)
	}
}

func TestFunctionScoreInline(t *testing.T) {
	got := parse(t, `{"function_score": {"field_value_factor": {"field": "likes", "factor": 2}, "boost": 3}}`).(*query.FunctionScoreNode)
	if _, ok := got.Base.(*query.MatchAllNode); !ok {
		t.Errorf("base = %T, want match_all", got.Base)
	}
	if len(got.Functions) != 1 || got.Functions[0].Weight != 1 || got.Boost != 3 {
		t.Errorf("node = %+v", got)
	}
}

func TestQueryString(t *testing.T) {
	got, err := ParseQueryString("body", `Quick AND "brown fox" NOT dog`, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Clauses) != 3 {
		t.Fatalf("clauses = %+v", got.Clauses)
	}
	if c := got.Clauses[0]; c.Occur != query.Must || c.Node.(*query.TermNode).Term != "quick" {
		t.Errorf("first clause = %+v", c)
	}
	phrase, ok := got.Clauses[1].Node.(*query.SpanNode)
	if !ok || phrase.Op != query.SpanNear || phrase.Slop != 0 || len(phrase.Clauses) != 2 {
		t.Errorf("phrase clause = %+v", got.Clauses[1].Node)
	}
	if c := got.Clauses[2]; c.Occur != query.MustNot {
		t.Errorf("last clause occur = %v", c.Occur)
	}

	or, err := ParseQueryString("body", "fox OR dog", false)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range or.Clauses {
		if c.Occur != query.Should {
			t.Errorf("OR clause occur = %v", c.Occur)
		}
	}

	if _, err := ParseQueryString("body", "AND !!", false); !errors.Is(err, ErrEmptyQueryString) {
		t.Errorf("err = %v, want ErrEmptyQueryString", err)
	}
}

func TestSimpleQueryStringOperator(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want query.Occur
	}{
		{"default", `{"simple_query_string": {"query": "fox dog", "field": "body"}}`, query.Should},
		{"or", `{"simple_query_string": {"query": "fox dog", "field": "body", "default_operator": "or"}}`, query.Should},
		{"and", `{"simple_query_string": {"query": "fox dog", "field": "body", "default_operator": "AND"}}`, query.Must},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parse(t, tt.src).(*query.BooleanNode)
			if len(got.Clauses) != 2 {
				t.Fatalf("clauses = %+v", got.Clauses)
			}
			for _, c := range got.Clauses {
				if c.Occur != tt.want {
					t.Errorf("occur = %v, want %v", c.Occur, tt.want)
				}
			}
		})
	}

	_, err := NewRegistry().ParseQuery([]byte(`{"simple_query_string": {"query": "fox", "field": "body", "default_operator": "xor"}}`))
	if !errors.Is(err, apperrors.ErrQueryShape) {
		t.Errorf("err = %v, want query shape error", err)
	}
}

func TestParseRequest(t *testing.T) {
	reg := NewRegistry()
	req, err := reg.ParseRequest([]byte(`{"query": {"term": {"a": "b"}}, "size": 5, "timeout": "50ms", "profile": true}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Size != 5 || req.Timeout != 50*time.Millisecond || !req.Profile {
		t.Errorf("request = %+v", req)
	}

	req, err = reg.ParseRequest([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := req.Query.(*query.MatchAllNode); !ok {
		t.Errorf("default query = %T, want match_all", req.Query)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
	}{
		{"malformed json", `{"term":`, apperrors.ErrQueryShape},
		{"unknown query", `{"fuzzy": {"a": "b"}}`, apperrors.ErrQueryShape},
		{"two keys", `{"term": {"a": "b"}, "ids": {"values": []}}`, apperrors.ErrQueryShape},
		{"unknown field", `{"match_all": {"bost": 2}}`, apperrors.ErrQueryShape},
		{"span clause not a span", `{"span_near": {"clauses": [{"term": {"a": "b"}}]}}`, apperrors.ErrQueryShape},
		{"unknown score mode", `{"has_child": {"type": "a", "query": {"match_all": {}}, "score_mode": "median"}}`, apperrors.ErrQueryShape},
		{"nested without path", `{"nested": {"parent_type": "question", "query": {"match_all": {}}}}`, apperrors.ErrQueryShape},
		{"unknown function", `{"function_score": {"functions": [{"magic": {}}]}}`, apperrors.ErrScoreFunctionConfig},
		{"two functions in entry", `{"function_score": {"functions": [{"random_score": {}, "script_score": {"script": "saturation"}}]}}`, apperrors.ErrScoreFunctionConfig},
		{"empty entry", `{"function_score": {"functions": [{}]}}`, apperrors.ErrScoreFunctionConfig},
		{"bad modifier", `{"function_score": {"field_value_factor": {"field": "x", "modifier": "cube"}}}`, apperrors.ErrScoreFunctionConfig},
		{"bad distance unit", `{"function_score": {"gauss": {"loc": {"origin": {"lat": 1, "lon": 2}, "scale": "3 parsecs"}}}}`, apperrors.ErrScoreFunctionConfig},
	}
	reg := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.ParseQuery([]byte(tt.src))
			if !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestErrorMentionsLocation(t *testing.T) {
	_, err := NewRegistry().ParseQuery([]byte(`{"bool": {"should": [{"term": {"a": "b"}}, {"nope": {}}]}}`))
	var qe *apperrors.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v", err)
	}
	if want := "query.bool.should[1]: unknown query type \"nope\""; qe.Message != want {
		t.Errorf("message = %q, want %q", qe.Message, want)
	}
}

func TestCustomRegistration(t *testing.T) {
	reg := NewRegistry(
		WithQuery("everything", func(p *Parser, body json.RawMessage) (query.Node, error) {
			return query.MatchAll(), nil
		}),
		WithScripts(function.NewScripts(nil)),
	)
	if _, err := reg.ParseQuery([]byte(`{"everything": {}}`)); err != nil {
		t.Errorf("custom query: %v", err)
	}
	n, err := reg.ParseQuery([]byte(`{"function_score": {"script_score": {"script": "saturation"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := query.Validate(n); !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("validate with empty scripts = %v, want config error", err)
	}
	found := false
	for _, name := range reg.Queries() {
		found = found || name == "everything"
	}
	if !found {
		t.Errorf("Queries() = %v", reg.Queries())
	}
}
