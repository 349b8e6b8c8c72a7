package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

// DefaultWeatherUnlockedBaseURL is the resort-forecast endpoint of the
// Weather Unlocked ski API.
const DefaultWeatherUnlockedBaseURL = "https://api.weatherunlocked.com/api/resortforecast"

type resortRef struct {
	ID    string
	Name  string
	State string
}

// usSkiResorts is the fixed catalog of tracked US resorts with Weather
// Unlocked resort IDs. States are two-letter codes so the (resort_name,
// state) vocabulary lines up with the SNOTEL adapter's.
var usSkiResorts = []resortRef{
	{"333012", "Vail", "CO"},
	{"333009", "Aspen Snowmass", "CO"},
	{"333020", "Park City", "UT"},
	{"333275", "Mammoth Mountain", "CA"},
	{"333024", "Breckenridge", "CO"},
	{"333011", "Steamboat", "CO"},
	{"333021", "Alta", "UT"},
	{"333023", "Jackson Hole", "WY"},
	{"333276", "Squaw Valley", "CA"},
	{"333277", "Heavenly", "CA"},
	{"333015", "Big Sky", "MT"},
	{"333278", "Killington", "VT"},
	{"333279", "Stowe", "VT"},
	{"333280", "Sugarloaf", "ME"},
	{"333281", "Whiteface", "NY"},
}

// WeatherUnlockedSource reads current resort conditions from the Weather
// Unlocked API (API-key authenticated).
type WeatherUnlockedSource struct {
	appID   string
	apiKey  string
	baseURL string
	resorts []resortRef
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewWeatherUnlockedSource creates a Weather Unlocked adapter.
func NewWeatherUnlockedSource(client *http.Client, baseURL, appID, apiKey string) *WeatherUnlockedSource {
	if baseURL == "" {
		baseURL = DefaultWeatherUnlockedBaseURL
	}
	return &WeatherUnlockedSource{
		appID:   appID,
		apiKey:  apiKey,
		baseURL: baseURL,
		resorts: usSkiResorts,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newBreaker("weatherunlocked"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *WeatherUnlockedSource) Name() snow.DataSource {
	return snow.SourceWeatherUnlocked
}

// resortForecastPayload is the subset of the resortforecast response the
// pipeline consumes. Snow fields default to 0 when absent; base temperature
// stays null.
type resortForecastPayload struct {
	SnowDepth       *float64 `json:"snow_depth"`
	SnowLast24h     *float64 `json:"snow_last_24h"`
	SnowLast72h     *float64 `json:"snow_last_72h"`
	SnowLast7d      *float64 `json:"snow_last_7d"`
	BaseElevationFt *float64 `json:"base_elevation_ft"`
	BaseTempF       *float64 `json:"base_temp_f"`
}

// Fetch pulls every cataloged resort concurrently. Individual resort
// failures are logged and skipped; the source as a whole fails only when no
// resort could be fetched.
func (s *WeatherUnlockedSource) Fetch(ctx context.Context) ([]snow.SnowReport, error) {
	if s.appID == "" || s.apiKey == "" {
		return nil, fmt.Errorf("weatherunlocked: credentials not configured")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []snow.SnowReport
		lastErr error
	)
	for _, resort := range s.resorts {
		wg.Add(1)
		go func(resort resortRef) {
			defer wg.Done()

			report, err := s.fetchResort(ctx, resort)
			if err != nil {
				log.Printf("weatherunlocked: resort %s (%s) skipped: %v", resort.Name, resort.ID, err)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(resort)
	}
	wg.Wait()

	if len(reports) == 0 && lastErr != nil {
		return nil, fmt.Errorf("weatherunlocked: all %d resorts failed, last error: %w", len(s.resorts), lastErr)
	}
	return reports, nil
}

func (s *WeatherUnlockedSource) fetchResort(ctx context.Context, resort resortRef) (snow.SnowReport, error) {
	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s?app_id=%s&app_key=%s", s.baseURL, resort.ID, s.appID, s.apiKey)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doResilientRequest(ctx, s.httpCfg, s.circuit, buildRequest)
	if err != nil {
		return snow.SnowReport{}, err
	}
	defer resp.Body.Close()

	var payload resortForecastPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return snow.SnowReport{}, fmt.Errorf("decode response: %w", err)
	}

	return snow.SnowReport{
		ResortName:  resort.Name,
		State:       resort.State,
		Timestamp:   s.now(),
		SnowDepth:   orZero(payload.SnowDepth),
		NewSnow24h:  orZero(payload.SnowLast24h),
		NewSnow72h:  orZero(payload.SnowLast72h),
		NewSnow7d:   orZero(payload.SnowLast7d),
		Elevation:   orZero(payload.BaseElevationFt),
		Temperature: payload.BaseTempF,
		DataSource:  snow.SourceWeatherUnlocked,
	}, nil
}

func orZero(v *float64) *float64 {
	if v == nil {
		return ptr(0)
	}
	return v
}
