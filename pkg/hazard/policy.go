package hazard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the thresholds the evaluator applies. Limits are inclusive.
type Policy struct {
	ExtremeHeatC      float64 `yaml:"extreme_heat_c"`
	SevereColdC       float64 `yaml:"severe_cold_c"`
	HighWindKmh       float64 `yaml:"high_wind_kmh"`
	HighUVIndex       float64 `yaml:"high_uv_index"`
	PM25Limit         float64 `yaml:"pm2_5_limit"`
	PM10Limit         float64 `yaml:"pm10_limit"`
	ThunderstormCodes []int   `yaml:"thunderstorm_codes"`
	HeavyRainCodes    []int   `yaml:"heavy_rain_codes"`
	HeavySnowCodes    []int   `yaml:"heavy_snow_codes"`
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ExtremeHeatC:      40,
		SevereColdC:       5,
		HighWindKmh:       60,
		HighUVIndex:       7,
		PM25Limit:         150,
		PM10Limit:         200,
		ThunderstormCodes: []int{95, 96, 99},
		HeavyRainCodes:    []int{61, 63, 65},
		HeavySnowCodes:    []int{71, 73, 75},
	}
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	if p.ExtremeHeatC <= p.SevereColdC {
		return fmt.Errorf("extreme_heat_c (%g) must be greater than severe_cold_c (%g)", p.ExtremeHeatC, p.SevereColdC)
	}
	if p.HighWindKmh <= 0 {
		return fmt.Errorf("high_wind_kmh must be positive")
	}
	if p.HighUVIndex <= 0 {
		return fmt.Errorf("high_uv_index must be positive")
	}
	if p.PM25Limit <= 0 || p.PM10Limit <= 0 {
		return fmt.Errorf("pm2_5_limit and pm10_limit must be positive")
	}
	if len(p.ThunderstormCodes) == 0 || len(p.HeavyRainCodes) == 0 || len(p.HeavySnowCodes) == 0 {
		return fmt.Errorf("weather code sets must not be empty")
	}
	return nil
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep their
// default values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	p, err := LoadPolicyFromBytes(data)
	if err != nil {
		return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// LoadPolicyFromBytes parses YAML policy data from raw bytes.
func LoadPolicyFromBytes(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
