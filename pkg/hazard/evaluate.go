package hazard

import (
	"slices"
	"strconv"
)

// Evaluate applies the default policy to a snapshot.
func Evaluate(s Snapshot) []Reason {
	return DefaultPolicy().Evaluate(s)
}

// Evaluate converts a snapshot into the ordered list of triggered reasons.
// Absent fields never trigger. The result is empty, not nil, when nothing fires.
func (p Policy) Evaluate(s Snapshot) []Reason {
	reasons := []Reason{}

	if t := s.TemperatureC; t != nil {
		switch {
		case *t >= p.ExtremeHeatC:
			reasons = append(reasons, Reason{Kind: KindExtremeHeat, Text: "Extreme Heat (" + num(*t) + "°C)"})
		case *t <= p.SevereColdC:
			reasons = append(reasons, Reason{Kind: KindSevereCold, Text: "Severe Cold (" + num(*t) + "°C)"})
		}
	}

	if w := s.WindSpeedKmh; w != nil && *w >= p.HighWindKmh {
		reasons = append(reasons, Reason{Kind: KindHighWind, Text: "High Wind (" + num(*w) + " km/h)"})
	}

	if uv := s.UVIndex; uv != nil && *uv >= p.HighUVIndex {
		reasons = append(reasons, Reason{Kind: KindHighUV, Text: "High UV (index " + num(*uv) + ")"})
	}

	switch {
	case s.PM25 != nil && *s.PM25 >= p.PM25Limit:
		reasons = append(reasons, Reason{Kind: KindPoorAirPM25, Text: "Poor Air (PM2.5 " + num(*s.PM25) + ")"})
	case s.PM10 != nil && *s.PM10 >= p.PM10Limit:
		reasons = append(reasons, Reason{Kind: KindPoorAirPM10, Text: "Poor Air (PM10 " + num(*s.PM10) + ")"})
	}

	if c := s.WeatherCode; c != nil {
		switch {
		case slices.Contains(p.ThunderstormCodes, *c):
			reasons = append(reasons, Reason{Kind: KindThunderstorm, Text: "Thunderstorm"})
		case slices.Contains(p.HeavyRainCodes, *c):
			reasons = append(reasons, Reason{Kind: KindHeavyRain, Text: "Heavy Rain"})
		case slices.Contains(p.HeavySnowCodes, *c):
			reasons = append(reasons, Reason{Kind: KindHeavySnow, Text: "Snow / Heavy Snow"})
		}
	}

	return reasons
}

// num renders a reading with the shortest exact representation, so 41 prints as
// "41" and 41.5 as "41.5".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
