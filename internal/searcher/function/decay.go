package function

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

type DecayKind uint8

const (
	DecayGauss DecayKind = iota + 1
	DecayLinear
	DecayExp
)

func (k DecayKind) String() string {
	switch k {
	case DecayGauss:
		return "gauss"
	case DecayLinear:
		return "linear"
	case DecayExp:
		return "exp"
	default:
		return "unknown"
	}
}

// DefaultDecayRate is the exp decay rate used when none is configured.
const DefaultDecayRate = 0.5

// Decay scores a document by the distance between its value of Field and
// Origin. Distances are in the field's unit: plain numbers for numeric
// fields, milliseconds for dates and meters for geo points. With
// d = max(0, |value − origin| − Offset):
//
//	linear  max(0, 1 − d/Scale)
//	exp     DecayRate^(d/Scale)
//	gauss   exp(−d² / (2·Scale²))
//
// Documents without the field score 1.
type Decay struct {
	Kind      DecayKind
	Field     string
	Origin    *index.Value
	Scale     float64
	Offset    float64
	DecayRate float64
}

func (d Decay) Name() string { return d.Kind.String() }

func (d Decay) Validate() error {
	if d.Kind < DecayGauss || d.Kind > DecayExp {
		return configError("unknown decay function %d", d.Kind)
	}
	if d.Field == "" {
		return configError("%s decay requires a field", d.Kind)
	}
	if d.Origin == nil {
		return configError("%s decay on %q requires an origin", d.Kind, d.Field)
	}
	switch d.Origin.Kind {
	case index.KindNumber, index.KindDate, index.KindGeo:
	default:
		return configError("%s decay origin must be a number, date or geo point, got %s", d.Kind, d.Origin.Kind)
	}
	if math.IsNaN(d.Scale) || math.IsInf(d.Scale, 0) || d.Scale <= 0 {
		return configError("%s decay scale must be positive, got %g", d.Kind, d.Scale)
	}
	if math.IsNaN(d.Offset) || d.Offset < 0 {
		return configError("%s decay offset must be non-negative, got %g", d.Kind, d.Offset)
	}
	if d.Kind == DecayExp && (d.DecayRate <= 0 || d.DecayRate >= 1) {
		return configError("exp decay rate must be within (0, 1), got %g", d.DecayRate)
	}
	return nil
}

func (d Decay) Score(dc query.DocContext) (float64, error) {
	v, ok := dc.Reader.FieldValue(dc.Doc, d.Field)
	if !ok {
		return 1, nil
	}
	if v.Kind != d.Origin.Kind {
		return 0, configError("%s decay origin is a %s but field %q holds %s values", d.Kind, d.Origin.Kind, d.Field, v.Kind)
	}
	var dist float64
	if v.Kind == index.KindGeo {
		dist = index.HaversineMeters(v.Lat, v.Lon, d.Origin.Lat, d.Origin.Lon)
	} else {
		dist = math.Abs(v.Num - d.Origin.Num)
	}
	return d.decay(dist), nil
}

func (d Decay) decay(distance float64) float64 {
	x := math.Max(0, distance-d.Offset)
	switch d.Kind {
	case DecayLinear:
		return math.Max(0, 1-x/d.Scale)
	case DecayExp:
		return math.Pow(d.DecayRate, x/d.Scale)
	default:
		return math.Exp(-(x * x) / (2 * d.Scale * d.Scale))
	}
}
