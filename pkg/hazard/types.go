package hazard

import "slices"

// Kind identifies a hazard condition. Throttling compares kinds, never display text.
type Kind string

const (
	KindExtremeHeat  Kind = "extreme_heat"
	KindSevereCold   Kind = "severe_cold"
	KindHighWind     Kind = "high_wind"
	KindHighUV       Kind = "high_uv"
	KindPoorAirPM25  Kind = "poor_air_pm25"
	KindPoorAirPM10  Kind = "poor_air_pm10"
	KindThunderstorm Kind = "thunderstorm"
	KindHeavyRain    Kind = "heavy_rain"
	KindHeavySnow    Kind = "heavy_snow"

	// KindTest marks a manually triggered test alert. The evaluator never emits it.
	KindTest Kind = "test"
)

// AllKinds lists every kind the evaluator can emit, in priority order.
var AllKinds = []Kind{
	KindExtremeHeat,
	KindSevereCold,
	KindHighWind,
	KindHighUV,
	KindPoorAirPM25,
	KindPoorAirPM10,
	KindThunderstorm,
	KindHeavyRain,
	KindHeavySnow,
}

// Valid reports whether k is a known kind, including KindTest.
func (k Kind) Valid() bool {
	return k == KindTest || slices.Contains(AllKinds, k)
}

// Reason is one triggered threshold condition.
type Reason struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Snapshot holds the conditions observed at one location. Any field may be nil
// when the data source omitted it.
type Snapshot struct {
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	WindSpeedKmh *float64 `json:"wind_speed_kmh,omitempty"`
	UVIndex      *float64 `json:"uv_index,omitempty"`
	PM25         *float64 `json:"pm2_5,omitempty"`
	PM10         *float64 `json:"pm10,omitempty"`
	WeatherCode  *int     `json:"weather_code,omitempty"`
}

// Kinds returns the kinds of the given reasons, preserving order.
func Kinds(reasons []Reason) []Kind {
	kinds := make([]Kind, 0, len(reasons))
	for _, r := range reasons {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

// Texts returns the display texts of the given reasons, preserving order.
func Texts(reasons []Reason) []string {
	texts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		texts = append(texts, r.Text)
	}
	return texts
}

// Subset reports whether every kind in sub is also present in set.
// An empty sub is a subset of anything.
func Subset(sub, set []Kind) bool {
	for _, k := range sub {
		if !slices.Contains(set, k) {
			return false
		}
	}
	return true
}

// Float returns a pointer to v. Handy for building snapshots.
func Float(v float64) *float64 { return &v }

// Code returns a pointer to c.
func Code(c int) *int { return &c }
