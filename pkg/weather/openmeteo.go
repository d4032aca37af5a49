package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
)

// Default Open-Meteo endpoints.
const (
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultTimeout       = 15 * time.Second
)

// Options configures the Open-Meteo client.
type Options struct {
	ForecastURL string
	// AirQualityURL may be empty to skip pollutant lookups.
	AirQualityURL string
	Timeout       time.Duration
}

// OpenMeteo implements Source using the Open-Meteo forecast and air-quality APIs.
// Temperature, wind, UV and weather code come from the forecast; PM2.5 and PM10
// from the air-quality API.
type OpenMeteo struct {
	forecastURL   string
	airQualityURL string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewOpenMeteo creates an Open-Meteo client.
func NewOpenMeteo(opts Options, logger *slog.Logger) *OpenMeteo {
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &OpenMeteo{
		forecastURL:   opts.ForecastURL,
		airQualityURL: opts.AirQualityURL,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		logger:        logger,
	}
}

// Fetch returns the current snapshot for a coordinate. A forecast failure is an
// error; an air-quality failure only leaves the pollutant fields empty.
func (c *OpenMeteo) Fetch(ctx context.Context, lat, lon float64) (hazard.Snapshot, error) {
	var fc forecastResponse
	params := url.Values{
		"latitude":        {coord(lat)},
		"longitude":       {coord(lon)},
		"current_weather": {"true"},
		"hourly":          {"uv_index"},
		"forecast_days":   {"1"},
		"timezone":        {"GMT"},
	}
	if err := c.get(ctx, c.forecastURL, params, &fc); err != nil {
		return hazard.Snapshot{}, fmt.Errorf("forecast: %w", err)
	}

	cw := fc.CurrentWeather
	snap := hazard.Snapshot{
		TemperatureC: cw.Temperature,
		WindSpeedKmh: cw.WindSpeed,
	}
	if cw.WeatherCode != nil {
		snap.WeatherCode = hazard.Code(int(math.Round(*cw.WeatherCode)))
	}
	idx := hourIndex(fc.Hourly.Time, cw.Time)
	snap.UVIndex = at(fc.Hourly.UVIndex, idx)

	if c.airQualityURL == "" {
		return snap, nil
	}

	var aq airQualityResponse
	params = url.Values{
		"latitude":      {coord(lat)},
		"longitude":     {coord(lon)},
		"hourly":        {"pm2_5,pm10"},
		"forecast_days": {"1"},
		"timezone":      {"GMT"},
	}
	if err := c.get(ctx, c.airQualityURL, params, &aq); err != nil {
		c.logger.Warn("air quality lookup failed", "lat", lat, "lon", lon, "error", err)
		return snap, nil
	}
	idx = hourIndex(aq.Hourly.Time, cw.Time)
	snap.PM25 = at(aq.Hourly.PM25, idx)
	snap.PM10 = at(aq.Hourly.PM10, idx)

	return snap, nil
}

func (c *OpenMeteo) get(ctx context.Context, base string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// hourIndex finds the hourly slot that covers the current observation time.
// It falls back to the first slot when the time is missing or not listed.
func hourIndex(times []string, current string) int {
	if len(current) >= 13 {
		hour := current[:13]
		for i, t := range times {
			if strings.HasPrefix(t, hour) {
				return i
			}
		}
	}
	return 0
}

func at(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Open-Meteo response types.

type forecastResponse struct {
	CurrentWeather struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature"`
		WindSpeed   *float64 `json:"windspeed"`
		WeatherCode *float64 `json:"weathercode"`
	} `json:"current_weather"`
	Hourly struct {
		Time    []string   `json:"time"`
		UVIndex []*float64 `json:"uv_index"`
	} `json:"hourly"`
}

type airQualityResponse struct {
	Hourly struct {
		Time []string   `json:"time"`
		PM25 []*float64 `json:"pm2_5"`
		PM10 []*float64 `json:"pm10"`
	} `json:"hourly"`
}
