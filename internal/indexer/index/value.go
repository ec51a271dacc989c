package index

import (
	"fmt"
	"math"
	"time"
)

// ValueKind tags the type held by a Value.
type ValueKind uint8

const (
	KindNumber ValueKind = iota + 1
	KindKeyword
	KindDate
	KindGeo
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindKeyword:
		return "keyword"
	case KindDate:
		return "date"
	case KindGeo:
		return "geo_point"
	default:
		return "unknown"
	}
}

// Value is a typed per-document field value (a "doc value"). Dates are held
// as Unix milliseconds in Num.
type Value struct {
	Kind ValueKind `json:"k"`
	Num  float64   `json:"n,omitempty"`
	Str  string    `json:"s,omitempty"`
	Lat  float64   `json:"lat,omitempty"`
	Lon  float64   `json:"lon,omitempty"`
}

func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

func Keyword(s string) Value { return Value{Kind: KindKeyword, Str: s} }

func Date(t time.Time) Value { return Value{Kind: KindDate, Num: float64(t.UnixMilli())} }

func Geo(lat, lon float64) Value { return Value{Kind: KindGeo, Lat: lat, Lon: lon} }

// Time returns the date held by a KindDate value.
func (v Value) Time() time.Time {
	return time.UnixMilli(int64(v.Num)).UTC()
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindKeyword:
		return v.Str
	case KindDate:
		return v.Time().Format(time.RFC3339)
	case KindGeo:
		return fmt.Sprintf("%g,%g", v.Lat, v.Lon)
	default:
		return "<none>"
	}
}

const earthRadiusMeters = 6371008.8

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
