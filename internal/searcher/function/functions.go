// Package function implements score functions and the function-score
// combinator that applies them to a base query.
package function

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

func configError(format string, args ...any) error {
	return apperrors.NewQueryError(apperrors.ErrScoreFunctionConfig, format, args...)
}

// Weight returns Value for every document.
type Weight struct {
	Value float64
}

func (w Weight) Name() string { return "weight" }

func (w Weight) Validate() error {
	if math.IsNaN(w.Value) || math.IsInf(w.Value, 0) || w.Value < 0 {
		return configError("weight must be a non-negative number, got %g", w.Value)
	}
	return nil
}

func (w Weight) Score(query.DocContext) (float64, error) { return w.Value, nil }

type Modifier uint8

const (
	ModifierNone Modifier = iota
	ModifierLog
	ModifierLog1p
	ModifierLog2p
	ModifierLn
	ModifierLn1p
	ModifierLn2p
	ModifierSquare
	ModifierSqrt
	ModifierReciprocal
)

var modifierNames = map[string]Modifier{
	"none":       ModifierNone,
	"log":        ModifierLog,
	"log1p":      ModifierLog1p,
	"log2p":      ModifierLog2p,
	"ln":         ModifierLn,
	"ln1p":       ModifierLn1p,
	"ln2p":       ModifierLn2p,
	"square":     ModifierSquare,
	"sqrt":       ModifierSqrt,
	"reciprocal": ModifierReciprocal,
}

// ParseModifier maps a modifier name to its value.
func ParseModifier(name string) (Modifier, bool) {
	if name == "" {
		return ModifierNone, true
	}
	m, ok := modifierNames[name]
	return m, ok
}

func (m Modifier) apply(v float64) float64 {
	switch m {
	case ModifierLog:
		return math.Log10(v)
	case ModifierLog1p:
		return math.Log10(v + 1)
	case ModifierLog2p:
		return math.Log10(v + 2)
	case ModifierLn:
		return math.Log(v)
	case ModifierLn1p:
		return math.Log1p(v)
	case ModifierLn2p:
		return math.Log(v + 2)
	case ModifierSquare:
		return v * v
	case ModifierSqrt:
		return math.Sqrt(v)
	case ModifierReciprocal:
		return 1 / v
	default:
		return v
	}
}

// FieldValueFactor scores modifier(factor × value of Field). Missing is
// used for documents without the field; when it is nil such documents are
// an error.
type FieldValueFactor struct {
	Field    string
	Factor   float64
	Modifier Modifier
	Missing  *float64
}

func (f FieldValueFactor) Name() string { return "field_value_factor" }

func (f FieldValueFactor) Validate() error {
	if f.Field == "" {
		return configError("field_value_factor requires a field")
	}
	if math.IsNaN(f.Factor) || math.IsInf(f.Factor, 0) {
		return configError("field_value_factor factor must be finite, got %g", f.Factor)
	}
	if f.Modifier > ModifierReciprocal {
		return configError("unknown field_value_factor modifier %d", f.Modifier)
	}
	return nil
}

func (f FieldValueFactor) Score(dc query.DocContext) (float64, error) {
	var v float64
	val, ok := dc.Reader.FieldValue(dc.Doc, f.Field)
	switch {
	case ok && (val.Kind == index.KindNumber || val.Kind == index.KindDate):
		v = val.Num
	case ok:
		return 0, configError("field %q holds %s values, not numbers", f.Field, val.Kind)
	case f.Missing != nil:
		v = *f.Missing
	default:
		return 0, configError("document %d has no value for field %q", dc.Doc, f.Field)
	}
	return f.Modifier.apply(f.Factor * v), nil
}

// RandomScore returns a value in [0, 1) derived from Seed and the
// document's external ID, stable across segments and restarts.
type RandomScore struct {
	Seed uint64
}

func (r RandomScore) Name() string    { return "random_score" }
func (r RandomScore) Validate() error { return nil }

func (r RandomScore) Score(dc query.DocContext) (float64, error) {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], r.Seed)
	d := xxhash.New()
	d.Write(seed[:])
	d.WriteString(dc.Reader.ExternalID(dc.Doc))
	return float64(d.Sum64()>>11) / (1 << 53), nil
}
