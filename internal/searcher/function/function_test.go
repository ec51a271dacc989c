package function

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/searchtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

func ptr(v float64) *float64 { return &v }

func valuePtr(v index.Value) *index.Value { return &v }

func products(t *testing.T) *index.MemoryIndex {
	return searchtest.Index(t,
		index.Document{ID: "p0", Numbers: map[string]float64{"price": 10, "likes": 9}},
		index.Document{ID: "p1", Numbers: map[string]float64{"price": 20, "likes": 99}},
		index.Document{ID: "p2", Numbers: map[string]float64{"price": 40}},
	)
}

func TestDecayAtOriginIsOne(t *testing.T) {
	for _, kind := range []DecayKind{DecayGauss, DecayLinear, DecayExp} {
		d := Decay{Kind: kind, Field: "price", Origin: valuePtr(index.Number(10)), Scale: 5, DecayRate: 0.5}
		if got := d.decay(0); got != 1 {
			t.Errorf("%s decay(0) = %v, want 1", kind, got)
		}
	}
}

func TestDecayMonotonic(t *testing.T) {
	for _, kind := range []DecayKind{DecayGauss, DecayLinear, DecayExp} {
		d := Decay{Kind: kind, Field: "price", Origin: valuePtr(index.Number(0)), Scale: 10, DecayRate: 0.5}
		prev := d.decay(0)
		for dist := 1.0; dist <= 40; dist++ {
			cur := d.decay(dist)
			if cur > prev {
				t.Fatalf("%s decay increased at %v: %v > %v", kind, dist, cur, prev)
			}
			if cur < 0 || cur > 1 {
				t.Fatalf("%s decay(%v) = %v out of [0,1]", kind, dist, cur)
			}
			prev = cur
		}
	}
}

func TestDecayFormulas(t *testing.T) {
	tests := []struct {
		kind   DecayKind
		offset float64
		dist   float64
		want   float64
	}{
		{DecayLinear, 0, 5, 0.5},
		{DecayLinear, 0, 20, 0},
		{DecayLinear, 5, 5, 1},
		{DecayExp, 0, 10, 0.5},
		{DecayExp, 0, 20, 0.25},
		{DecayGauss, 0, 10, math.Exp(-0.5)},
	}
	for _, tt := range tests {
		d := Decay{Kind: tt.kind, Field: "x", Origin: valuePtr(index.Number(0)), Scale: 10, Offset: tt.offset, DecayRate: 0.5}
		if got := d.decay(tt.dist); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s(dist=%v, offset=%v) = %v, want %v", tt.kind, tt.dist, tt.offset, got, tt.want)
		}
	}
}

func TestDecayOverDatesAndGeo(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	idx := searchtest.Index(t,
		index.Document{ID: "new", Dates: map[string]time.Time{"at": now}, Geo: map[string]index.GeoPoint{"loc": {Lat: 0, Lon: 0}}},
		index.Document{ID: "old", Dates: map[string]time.Time{"at": now.Add(-48 * time.Hour)}, Geo: map[string]index.GeoPoint{"loc": {Lat: 0, Lon: 1}}},
	)
	day := float64(24 * time.Hour / time.Millisecond)
	date := Decay{Kind: DecayLinear, Field: "at", Origin: valuePtr(index.Date(now)), Scale: 4 * day}
	if got, _ := date.Score(query.DocContext{Reader: idx, Doc: 1}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("date decay = %v, want 0.5", got)
	}
	geo := Decay{Kind: DecayGauss, Field: "loc", Origin: valuePtr(index.Geo(0, 0)), Scale: 50000}
	near, _ := geo.Score(query.DocContext{Reader: idx, Doc: 0})
	far, _ := geo.Score(query.DocContext{Reader: idx, Doc: 1})
	if near != 1 || far >= near {
		t.Errorf("geo decay near=%v far=%v", near, far)
	}
	if _, err := date.Score(query.DocContext{Reader: idx, Doc: 0}); err != nil {
		t.Errorf("date decay: %v", err)
	}
	mismatch := Decay{Kind: DecayLinear, Field: "at", Origin: valuePtr(index.Number(1)), Scale: 1}
	if _, err := mismatch.Score(query.DocContext{Reader: idx, Doc: 0}); !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("origin kind mismatch err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	origin := valuePtr(index.Number(0))
	tests := []struct {
		name string
		fn   query.ScoreFunction
	}{
		{"missing origin", Decay{Kind: DecayGauss, Field: "x", Scale: 1}},
		{"keyword origin", Decay{Kind: DecayGauss, Field: "x", Origin: valuePtr(index.Keyword("a")), Scale: 1}},
		{"zero scale", Decay{Kind: DecayLinear, Field: "x", Origin: origin}},
		{"negative offset", Decay{Kind: DecayLinear, Field: "x", Origin: origin, Scale: 1, Offset: -1}},
		{"decay rate of one", Decay{Kind: DecayExp, Field: "x", Origin: origin, Scale: 1, DecayRate: 1}},
		{"decay rate of zero", Decay{Kind: DecayExp, Field: "x", Origin: origin, Scale: 1}},
		{"negative weight", Weight{Value: -1}},
		{"fvf without field", FieldValueFactor{Factor: 1}},
		{"unknown script", Script{Source: "nope", Scripts: DefaultScripts()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn.Validate(); !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
				t.Errorf("err = %v, want score function config error", err)
			}
		})
	}
}

func TestFieldValueFactor(t *testing.T) {
	idx := products(t)
	tests := []struct {
		name string
		fn   FieldValueFactor
		doc  index.DocID
		want float64
	}{
		{"plain", FieldValueFactor{Field: "price", Factor: 2}, 0, 20},
		{"log1p", FieldValueFactor{Field: "likes", Factor: 1, Modifier: ModifierLog1p}, 1, 2},
		{"sqrt", FieldValueFactor{Field: "likes", Factor: 1, Modifier: ModifierSqrt}, 0, 3},
		{"missing default", FieldValueFactor{Field: "likes", Factor: 1, Missing: ptr(4), Modifier: ModifierSquare}, 2, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn.Score(query.DocContext{Reader: idx, Doc: tt.doc})
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	_, err := FieldValueFactor{Field: "likes", Factor: 1}.Score(query.DocContext{Reader: idx, Doc: 2})
	if !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("missing value err = %v", err)
	}
}

func TestRandomScore(t *testing.T) {
	idx := products(t)
	r := RandomScore{Seed: 42}
	seen := make(map[float64]bool)
	for doc := index.DocID(0); doc < 3; doc++ {
		a, _ := r.Score(query.DocContext{Reader: idx, Doc: doc})
		b, _ := r.Score(query.DocContext{Reader: idx, Doc: doc})
		if a != b {
			t.Errorf("random score not stable for doc %d", doc)
		}
		if a < 0 || a >= 1 {
			t.Errorf("random score %v outside [0,1)", a)
		}
		seen[a] = true
	}
	if len(seen) < 2 {
		t.Error("random scores should differ across documents")
	}
}

func TestScripts(t *testing.T) {
	idx := products(t)
	s := Script{Source: "saturation", Params: map[string]any{"k": 1.0}, Scripts: DefaultScripts()}
	if got, err := s.Score(query.DocContext{Reader: idx, Doc: 0, Score: 3}); err != nil || got != 0.75 {
		t.Errorf("saturation = %v, %v; want 0.75", got, err)
	}
	bad := Script{Source: "saturation", Scripts: DefaultScripts()}
	if _, err := bad.Score(query.DocContext{Reader: idx, Doc: 0, Score: 3}); !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("missing param err = %v", err)
	}
	fl := Script{Source: "field_log1p", Params: map[string]any{"field": "price"}, Scripts: DefaultScripts()}
	if got, _ := fl.Score(query.DocContext{Reader: idx, Doc: 0}); math.Abs(got-math.Log1p(10)) > 1e-12 {
		t.Errorf("field_log1p = %v", got)
	}
}

func baseSet() *matchset.MatchSet {
	m := matchset.New()
	m.Add(0, 2)
	m.Add(1, 4)
	m.Add(2, 1)
	return m
}

func run(t *testing.T, node *query.FunctionScoreNode, base *matchset.MatchSet, filters []*matchset.MatchSet) map[index.DocID]float64 {
	t.Helper()
	out, err := Combine(context.Background(), node, base, filters, products(t))
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	got := make(map[index.DocID]float64)
	out.Each(func(d index.DocID, s float64) bool {
		got[d] = s
		return true
	})
	return got
}

func TestCombineModes(t *testing.T) {
	fns := []query.WeightedFunction{
		{Weight: 2, Function: Weight{Value: 1.5}},
		{Weight: 1},
	}
	tests := []struct {
		mode query.CombineMode
		want float64
	}{
		{query.CombineMultiply, 2 * 3 * 1},
		{query.CombineSum, 2 + 3 + 1},
		{query.CombineReplace, 3 + 1},
		{query.CombineMin, 1},
		{query.CombineMax, 3},
		{query.CombineAvg, 2},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			node := query.FunctionScore(query.MatchAll(), tt.mode, fns...)
			got := run(t, node, baseSet(), nil)
			if math.Abs(got[0]-tt.want) > 1e-9 {
				t.Errorf("doc 0 = %v, want %v", got[0], tt.want)
			}
		})
	}
}

func TestReplaceIgnoresBase(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineReplace,
		query.WeightedFunction{Weight: 1, Function: FieldValueFactor{Field: "price", Factor: 1}})
	got := run(t, node, baseSet(), nil)
	other := baseSet()
	other.Add(0, 1000)
	got2 := run(t, node, other, nil)
	if got[0] != 10 || got2[0] != 10 {
		t.Errorf("replace depends on base: %v vs %v", got[0], got2[0])
	}

	// Without an applicable function the neutral factor stands in for base.
	missFilter := matchset.New()
	missFilter.Add(2, 1)
	filtered := query.FunctionScore(query.MatchAll(), query.CombineReplace,
		query.WeightedFunction{Weight: 3, Filter: query.Ids("p2")})
	tests := []struct {
		name    string
		node    *query.FunctionScoreNode
		filters []*matchset.MatchSet
	}{
		{"no functions", query.FunctionScore(query.MatchAll(), query.CombineReplace), nil},
		{"filters miss", filtered, AlignFilters(filtered, []*matchset.MatchSet{baseSet(), missFilter})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, base := range []float64{1, 7} {
				m := matchset.New()
				m.Add(0, base)
				got := run(t, tt.node, m, tt.filters)
				if got[0] != 1 {
					t.Errorf("base %v: score = %v, want 1", base, got[0])
				}
			}
		})
	}
}

func TestFiltersSelectFunctions(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineMultiply,
		query.WeightedFunction{Weight: 10, Filter: query.Ids("p1")})
	filter := matchset.New()
	filter.Add(1, 1)
	got := run(t, node, baseSet(), AlignFilters(node, []*matchset.MatchSet{baseSet(), filter}))
	if got[0] != 2 || got[1] != 40 {
		t.Errorf("got %v, want doc0=2 (untouched) doc1=40", got)
	}
}

func TestMinMaxScoreAndBoost(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineMultiply, query.WeightedFunction{Weight: 1})
	node.MaxScore = ptr(3)
	node.MinScore = ptr(2)
	node.Boost = 2
	got := run(t, node, baseSet(), nil)
	want := map[index.DocID]float64{0: 4, 1: 6}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

type negative struct{}

func (negative) Name() string                            { return "negative" }
func (negative) Validate() error                         { return nil }
func (negative) Score(query.DocContext) (float64, error) { return -1, nil }

func TestNegativeOutputFails(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineSum, query.WeightedFunction{Weight: 1, Function: negative{}})
	_, err := Combine(context.Background(), node, baseSet(), nil, products(t))
	if !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("err = %v, want score function config error", err)
	}
}

func TestInfiniteOutputFails(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineSum, query.WeightedFunction{
		Weight:   1,
		Function: FieldValueFactor{Field: "price", Factor: 0, Modifier: ModifierReciprocal},
	})
	_, err := Combine(context.Background(), node, baseSet(), nil, products(t))
	if !errors.Is(err, apperrors.ErrScoreFunctionConfig) {
		t.Errorf("err = %v, want score function config error", err)
	}
}

func TestAlignFilters(t *testing.T) {
	node := query.FunctionScore(query.MatchAll(), query.CombineSum,
		query.WeightedFunction{Weight: 1},
		query.WeightedFunction{Weight: 1, Filter: query.MatchAll()},
		query.WeightedFunction{Weight: 1},
		query.WeightedFunction{Weight: 1, Filter: query.MatchAll()},
	)
	a, b := matchset.New(), matchset.New()
	got := AlignFilters(node, []*matchset.MatchSet{matchset.New(), a, b})
	if got[0] != nil || got[1] != a || got[2] != nil || got[3] != b {
		t.Errorf("misaligned filters: %v", got)
	}
}
