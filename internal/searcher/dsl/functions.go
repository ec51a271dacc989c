package dsl

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/function"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

var combineModes = map[string]query.CombineMode{
	"multiply": query.CombineMultiply,
	"sum":      query.CombineSum,
	"replace":  query.CombineReplace,
	"min":      query.CombineMin,
	"max":      query.CombineMax,
	"avg":      query.CombineAvg,
}

// decodeFunctionScore reads
//
//	{"query": {...}, "functions": [{"filter": {...}, "weight": 2, "gauss": {...}}],
//	 "combine_mode": "multiply", "min_score": 1, "max_score": 10}
//
// A single function may also be given inline next to "query". A missing
// query matches every document.
func decodeFunctionScore(p *Parser, body json.RawMessage) (query.Node, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil || m == nil {
		return nil, p.shapeError("function_score must be a JSON object")
	}

	var base query.Node = query.MatchAll()
	if raw, ok := m["query"]; ok {
		n, err := p.Sub("query", raw)
		if err != nil {
			return nil, err
		}
		base = n
	}
	mode := query.CombineMultiply
	if raw, ok := m["combine_mode"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, p.shapeError("combine_mode must be a string")
		}
		cm, ok := combineModes[name]
		if !ok {
			return nil, p.shapeError("unknown combine_mode %q", name)
		}
		mode = cm
	}
	n := query.FunctionScore(base, mode)

	var c common
	var err error
	if c.Boost, err = p.optionalFloat(m, "boost"); err != nil {
		return nil, err
	}
	if raw, ok := m["_name"]; ok {
		if err := json.Unmarshal(raw, &c.Name); err != nil {
			return nil, p.shapeError("_name must be a string")
		}
	}
	c.apply(&n.Common)
	if n.MinScore, err = p.optionalFloat(m, "min_score"); err != nil {
		return nil, err
	}
	if n.MaxScore, err = p.optionalFloat(m, "max_score"); err != nil {
		return nil, err
	}

	if raw, ok := m["functions"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, p.shapeError("functions must be an array")
		}
		for i, item := range items {
			p.push(fmt.Sprintf("functions[%d]", i))
			wf, err := p.weightedFunction(item)
			p.pop()
			if err != nil {
				return nil, err
			}
			n.Functions = append(n.Functions, wf)
		}
		if err := p.rejectUnknown(m, "query", "combine_mode", "boost", "_name", "min_score", "max_score", "functions"); err != nil {
			return nil, err
		}
		return n, nil
	}

	inline := make(map[string]json.RawMessage)
	for k, v := range m {
		switch k {
		case "query", "combine_mode", "boost", "_name", "min_score", "max_score":
		default:
			inline[k] = v
		}
	}
	if len(inline) > 0 {
		raw, _ := json.Marshal(inline)
		wf, err := p.weightedFunction(raw)
		if err != nil {
			return nil, err
		}
		n.Functions = append(n.Functions, wf)
	}
	return n, nil
}

// weightedFunction reads one entry of "functions": an optional filter, an
// optional weight and at most one registered function.
func (p *Parser) weightedFunction(raw json.RawMessage) (query.WeightedFunction, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return query.WeightedFunction{}, p.shapeError("function entry must be a JSON object")
	}
	wf := query.WeightedFunction{Weight: 1}
	weight, err := p.optionalFloat(m, "weight")
	if err != nil {
		return wf, err
	}
	if weight != nil {
		wf.Weight = *weight
	}
	if raw, ok := m["filter"]; ok {
		if wf.Filter, err = p.Sub("filter", raw); err != nil {
			return wf, err
		}
	}

	var names []string
	for k := range m {
		if k != "weight" && k != "filter" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	switch {
	case len(names) > 1:
		return wf, p.functionError("one function per entry, got %s", strings.Join(names, ", "))
	case len(names) == 0 && weight == nil:
		return wf, p.functionError("function entry needs a function or a weight")
	case len(names) == 0:
		return wf, nil
	}
	dec, ok := p.reg.functions[names[0]]
	if !ok {
		return wf, p.functionError("unknown score function %q", names[0])
	}
	p.push(names[0])
	defer p.pop()
	fn, err := dec(p, m[names[0]])
	if err != nil {
		return wf, err
	}
	wf.Function = fn
	return wf, nil
}

func (p *Parser) optionalFloat(m map[string]json.RawMessage, key string) (*float64, error) {
	raw, ok := m[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, p.shapeError("%s must be a number", key)
	}
	return &v, nil
}

func (p *Parser) rejectUnknown(m map[string]json.RawMessage, known ...string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	for k := range m {
		if !allowed[k] {
			return p.shapeError("unknown key %q", k)
		}
	}
	return nil
}

// strictFunction decodes a function body, reporting malformed input as a
// score function config error.
func (p *Parser) strictFunction(raw json.RawMessage, v any) error {
	if err := p.strict(raw, v); err != nil {
		return p.functionError("malformed body: %v", err)
	}
	return nil
}

type fieldValueFactorBody struct {
	Field    string   `json:"field"`
	Factor   *float64 `json:"factor"`
	Modifier string   `json:"modifier"`
	Missing  *float64 `json:"missing"`
}

func decodeFieldValueFactor(p *Parser, body json.RawMessage) (query.ScoreFunction, error) {
	var b fieldValueFactorBody
	if err := p.strictFunction(body, &b); err != nil {
		return nil, err
	}
	mod, ok := function.ParseModifier(b.Modifier)
	if !ok {
		return nil, p.functionError("unknown modifier %q", b.Modifier)
	}
	f := function.FieldValueFactor{Field: b.Field, Factor: 1, Modifier: mod, Missing: b.Missing}
	if b.Factor != nil {
		f.Factor = *b.Factor
	}
	return f, nil
}

type randomScoreBody struct {
	Seed json.RawMessage `json:"seed"`
}

// decodeRandomScore accepts a numeric seed or hashes a string seed.
func decodeRandomScore(p *Parser, body json.RawMessage) (query.ScoreFunction, error) {
	var b randomScoreBody
	if err := p.strictFunction(body, &b); err != nil {
		return nil, err
	}
	if isNull(b.Seed) {
		return function.RandomScore{}, nil
	}
	var s string
	if err := json.Unmarshal(b.Seed, &s); err == nil {
		return function.RandomScore{Seed: xxhash.Sum64String(s)}, nil
	}
	var n uint64
	if err := json.Unmarshal(b.Seed, &n); err != nil {
		return nil, p.functionError("seed must be a non-negative integer or a string")
	}
	return function.RandomScore{Seed: n}, nil
}

type decayBody struct {
	Origin json.RawMessage `json:"origin"`
	Scale  json.RawMessage `json:"scale"`
	Offset json.RawMessage `json:"offset"`
	Decay  *float64        `json:"decay"`
}

// decodeDecay reads {"<field>": {"origin": ..., "scale": ..., "offset": ...,
// "decay": 0.5}}. Date origins take durations such as "10d" and geo origins
// take distances such as "2km".
func decodeDecay(kind function.DecayKind) FunctionDecoder {
	return func(p *Parser, body json.RawMessage) (query.ScoreFunction, error) {
		field, raw, err := p.single(body, kind.String())
		if err != nil {
			return nil, p.functionError("%s needs exactly one field", kind)
		}
		var b decayBody
		if err := p.strictFunction(raw, &b); err != nil {
			return nil, err
		}
		origin, err := p.decayOrigin(b.Origin)
		if err != nil {
			return nil, err
		}
		scale, err := p.decayDistance(origin.Kind, b.Scale, "scale")
		if err != nil {
			return nil, err
		}
		d := function.Decay{
			Kind:      kind,
			Field:     field,
			Origin:    &origin,
			Scale:     scale,
			DecayRate: function.DefaultDecayRate,
		}
		if !isNull(b.Offset) {
			if d.Offset, err = p.decayDistance(origin.Kind, b.Offset, "offset"); err != nil {
				return nil, err
			}
		}
		if b.Decay != nil {
			d.DecayRate = *b.Decay
		}
		return d, nil
	}
}

func (p *Parser) decayOrigin(raw json.RawMessage) (index.Value, error) {
	if isNull(raw) {
		return index.Value{}, p.functionError("origin is required")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return index.Value{}, p.functionError("invalid origin")
	}
	switch v := v.(type) {
	case float64:
		return index.Number(v), nil
	case map[string]any:
		lat, latOK := v["lat"].(float64)
		lon, lonOK := v["lon"].(float64)
		if !latOK || !lonOK || len(v) != 2 {
			return index.Value{}, p.functionError("geo origin needs numeric lat and lon")
		}
		return index.Geo(lat, lon), nil
	case string:
		if t, ok := p.parseDate(v); ok {
			return index.Date(t), nil
		}
		if lat, lon, ok := parseLatLon(v); ok {
			return index.Geo(lat, lon), nil
		}
		return index.Value{}, p.functionError("origin %q is neither a date nor a lat,lon pair", v)
	default:
		return index.Value{}, p.functionError("origin must be a number, date or geo point")
	}
}

func parseLatLon(s string) (float64, float64, bool) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, false
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	return la, lo, err1 == nil && err2 == nil
}

// decayDistance converts scale or offset into the unit of the origin kind:
// milliseconds for dates, meters for geo points.
func (p *Parser) decayDistance(kind index.ValueKind, raw json.RawMessage, key string) (float64, error) {
	if isNull(raw) {
		return 0, p.functionError("%s is required", key)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, p.functionError("invalid %s", key)
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case string:
		var (
			out float64
			err error
		)
		switch kind {
		case index.KindDate:
			var d time.Duration
			d, err = parseDuration(v)
			out = float64(d.Milliseconds())
		case index.KindGeo:
			out, err = parseDistance(v)
		default:
			err = fmt.Errorf("numeric origins take numeric %s", key)
		}
		if err != nil {
			return 0, p.functionError("%s %q: %v", key, v, err)
		}
		return out, nil
	default:
		return 0, p.functionError("%s must be a number or string", key)
	}
}

// parseDuration extends time.ParseDuration with day ("d") and week ("w")
// units.
func parseDuration(s string) (time.Duration, error) {
	num, unit := splitUnit(s)
	switch unit {
	case "d", "w":
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		day := 24 * time.Hour
		if unit == "w" {
			day *= 7
		}
		return time.Duration(n * float64(day)), nil
	}
	return time.ParseDuration(s)
}

var distanceUnits = map[string]float64{
	"":   1,
	"m":  1,
	"km": 1000,
	"cm": 0.01,
	"mm": 0.001,
	"mi": 1609.344,
	"yd": 0.9144,
	"ft": 0.3048,
	"in": 0.0254,
	"nm": 1852,
}

func parseDistance(s string) (float64, error) {
	num, unit := splitUnit(s)
	factor, ok := distanceUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown distance unit %q", unit)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, fmt.Errorf("distance must be finite")
	}
	return n * factor, nil
}

func splitUnit(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexFunc(s, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
	return s[:i+1], strings.ToLower(strings.TrimSpace(s[i+1:]))
}

type scriptBody struct {
	Source string         `json:"source"`
	Params map[string]any `json:"params"`
}

// decodeScript reads {"script": "saturation"} or
// {"script": {"source": "saturation", "params": {...}}}.
func decodeScript(p *Parser, body json.RawMessage) (query.ScoreFunction, error) {
	var wrapper struct {
		Script json.RawMessage `json:"script"`
	}
	if err := p.strictFunction(body, &wrapper); err != nil {
		return nil, err
	}
	var b scriptBody
	if err := json.Unmarshal(wrapper.Script, &b.Source); err != nil {
		if err := p.strictFunction(wrapper.Script, &b); err != nil {
			return nil, err
		}
	}
	if b.Source == "" {
		return nil, p.functionError("script source is required")
	}
	return function.Script{Source: b.Source, Params: b.Params, Scripts: p.Scripts()}, nil
}
