package function

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

// ScriptFunc computes a score from the document context and the parameters
// given in the query.
type ScriptFunc func(dc query.DocContext, params map[string]any) (float64, error)

// Scripts is an immutable name → ScriptFunc registry.
type Scripts struct {
	funcs map[string]ScriptFunc
}

func NewScripts(funcs map[string]ScriptFunc) *Scripts {
	cp := make(map[string]ScriptFunc, len(funcs))
	for name, fn := range funcs {
		cp[name] = fn
	}
	return &Scripts{funcs: cp}
}

// DefaultScripts holds the scripts every searcher ships with.
func DefaultScripts() *Scripts {
	return NewScripts(map[string]ScriptFunc{
		"saturation":  saturation,
		"field_log1p": fieldLog1p,
	})
}

func (s *Scripts) Lookup(name string) (ScriptFunc, bool) {
	if s == nil {
		return nil, false
	}
	fn, ok := s.funcs[name]
	return fn, ok
}

func (s *Scripts) Names() []string {
	names := make([]string, 0, len(s.funcs))
	for n := range s.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Script runs a registered ScriptFunc.
type Script struct {
	Source  string
	Params  map[string]any
	Scripts *Scripts
}

func (s Script) Name() string { return "script_score" }

func (s Script) Validate() error {
	if _, ok := s.Scripts.Lookup(s.Source); !ok {
		return configError("unknown script %q", s.Source)
	}
	return nil
}

func (s Script) Score(dc query.DocContext) (float64, error) {
	fn, ok := s.Scripts.Lookup(s.Source)
	if !ok {
		return 0, configError("unknown script %q", s.Source)
	}
	v, err := fn(dc, s.Params)
	if err != nil {
		return 0, configError("script %q: %v", s.Source, err)
	}
	return v, nil
}

func floatParam(params map[string]any, name string) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", name, raw)
	}
}

// saturation maps the base score into [0, 1) as score / (score + k).
func saturation(dc query.DocContext, params map[string]any) (float64, error) {
	k, err := floatParam(params, "k")
	if err != nil {
		return 0, err
	}
	if k <= 0 {
		return 0, fmt.Errorf("k must be positive, got %g", k)
	}
	return dc.Score / (dc.Score + k), nil
}

// fieldLog1p returns ln(1 + value) of a numeric field, or 0 when the
// document lacks it.
func fieldLog1p(dc query.DocContext, params map[string]any) (float64, error) {
	field, ok := params["field"].(string)
	if !ok || field == "" {
		return 0, fmt.Errorf("parameter \"field\" must be a non-empty string")
	}
	v, ok := dc.Reader.FieldValue(dc.Doc, field)
	if !ok {
		return 0, nil
	}
	return math.Log1p(v.Num), nil
}
