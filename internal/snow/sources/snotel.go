package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

// DefaultSnotelBaseURL is the AWDB SOAP endpoint of the NRCS snow-telemetry
// network.
const DefaultSnotelBaseURL = "https://wcc.sc.egov.usda.gov/awdbWebService/services"

const snotelNetworkCode = "SNTL"

// getStations request: all SNOTEL stations reporting snow depth (SNWD).
const getStationsRequest = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
    <soap:Header/>
    <soap:Body>
        <awdb:getStations xmlns:awdb="http://www.wcc.nrcs.usda.gov/ns/awdbWebService">
            <stationIds></stationIds>
            <elementCds>SNWD</elementCds>
            <ordinals>1</ordinals>
            <heightDepths></heightDepths>
            <networkCds>SNTL</networkCds>
        </awdb:getStations>
    </soap:Body>
</soap:Envelope>`

const getDataRequestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
    <soap:Header/>
    <soap:Body>
        <awdb:getData xmlns:awdb="http://www.wcc.nrcs.usda.gov/ns/awdbWebService">
            <stationTriplets>%s</stationTriplets>
            <elementCd>SNWD</elementCd>
            <ordinal>1</ordinal>
            <heightDepth></heightDepth>
            <duration>DAILY</duration>
            <getFlags>false</getFlags>
            <beginDate>%s</beginDate>
            <endDate>%s</endDate>
            <alwaysReturnDailyFeb29>false</alwaysReturnDailyFeb29>
        </awdb:getData>
    </soap:Body>
</soap:Envelope>`

// soapEnvelope covers both AWDB responses we issue. Field names match local
// element names so the namespace prefixes the service uses are irrelevant.
type soapEnvelope struct {
	Body struct {
		Fault *struct {
			FaultString string `xml:"faultstring"`
		} `xml:"Fault"`
		Stations *struct {
			Return []string `xml:"return"`
		} `xml:"getStationsResponse"`
		Data *struct {
			Return []struct {
				BeginDate string   `xml:"beginDate"`
				Values    []string `xml:"values"`
			} `xml:"return"`
		} `xml:"getDataResponse"`
	} `xml:"Body"`
}

type snotelStation struct {
	Triplet string // "CODE:STATE:SNTL"
	Name    string
	State   string
}

// SnotelSource reads daily snow-depth series from the public SNOTEL SOAP API
// and derives 24h/72h/7d accumulation per station.
type SnotelSource struct {
	baseURL      string
	stationLimit int // 0 = all stations
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	now          func() time.Time
}

// NewSnotelSource creates a SNOTEL adapter. stationLimit caps how many
// stations are queried per fetch (the network has several hundred); 0 means
// no cap.
func NewSnotelSource(client *http.Client, baseURL string, stationLimit int) *SnotelSource {
	if baseURL == "" {
		baseURL = DefaultSnotelBaseURL
	}
	return &SnotelSource{
		baseURL:      baseURL,
		stationLimit: stationLimit,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newBreaker("snotel"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SnotelSource) Name() snow.DataSource {
	return snow.SourceSNOTEL
}

// Fetch lists the SNOTEL stations and pulls each station's trailing-7-day
// snow-depth series concurrently. Individual station failures are logged and
// skipped; only a failure to list stations fails the whole source.
func (s *SnotelSource) Fetch(ctx context.Context) ([]snow.SnowReport, error) {
	stations, err := s.fetchStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("snotel: fetch stations: %w", err)
	}
	if s.stationLimit > 0 && len(stations) > s.stationLimit {
		stations = stations[:s.stationLimit]
	}
	log.Printf("INFO: snotel: querying %d stations", len(stations))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []snow.SnowReport
	)
	for _, st := range stations {
		wg.Add(1)
		go func(st snotelStation) {
			defer wg.Done()

			report, err := s.fetchStationReport(ctx, st)
			if err != nil {
				log.Printf("snotel: station %s skipped: %v", st.Triplet, err)
				return
			}
			if report == nil {
				return
			}

			mu.Lock()
			reports = append(reports, *report)
			mu.Unlock()
		}(st)
	}
	wg.Wait()

	return reports, nil
}

func (s *SnotelSource) fetchStations(ctx context.Context) ([]snotelStation, error) {
	env, err := s.soapCall(ctx, getStationsRequest)
	if err != nil {
		return nil, err
	}
	if env.Body.Fault != nil {
		return nil, fmt.Errorf("soap fault: %s", env.Body.Fault.FaultString)
	}
	if env.Body.Stations == nil {
		return nil, fmt.Errorf("malformed getStations response")
	}

	var stations []snotelStation
	for _, triplet := range env.Body.Stations.Return {
		parts := strings.Split(triplet, ":")
		if len(parts) != 3 {
			log.Printf("snotel: skipping malformed station triplet %q", triplet)
			continue
		}
		if parts[2] != snotelNetworkCode {
			continue
		}
		stations = append(stations, snotelStation{
			Triplet: triplet,
			Name:    "SNOTEL Station " + parts[0],
			State:   parts[1],
		})
	}
	return stations, nil
}

// fetchStationReport returns nil (no error) when the station has no usable
// data; the caller simply drops it from the batch.
func (s *SnotelSource) fetchStationReport(ctx context.Context, st snotelStation) (*snow.SnowReport, error) {
	end := s.now()
	begin := end.AddDate(0, 0, -7)

	body := fmt.Sprintf(getDataRequestTemplate,
		st.Triplet, begin.Format("2006-01-02"), end.Format("2006-01-02"))

	env, err := s.soapCall(ctx, body)
	if err != nil {
		return nil, err
	}
	if env.Body.Fault != nil {
		return nil, fmt.Errorf("soap fault: %s", env.Body.Fault.FaultString)
	}
	if env.Body.Data == nil || len(env.Body.Data.Return) == 0 {
		return nil, nil
	}

	// Daily values, oldest first; unparsable entries (nil readings) dropped.
	var depths []float64
	for _, raw := range env.Body.Data.Return[0].Values {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		depths = append(depths, v)
	}
	if len(depths) == 0 {
		return nil, nil
	}

	n := len(depths)
	latest := depths[n-1]
	if latest < 0 || latest > 1000 {
		log.Printf("snotel: station %s reported implausible depth %.1f", st.Triplet, latest)
		return nil, nil
	}

	// Accumulation deltas against earlier points in the daily series,
	// clamped at zero (melt shows up as negative change).
	var snow24h, snow72h, snow7d float64
	if n > 1 {
		snow24h = nonNegative(latest - depths[n-2])
	}
	if n > 3 {
		snow72h = nonNegative(latest - depths[n-4])
	}
	if n > 6 {
		snow7d = nonNegative(latest - depths[0])
	}

	return &snow.SnowReport{
		ResortName:  st.Name,
		State:       st.State,
		Timestamp:   s.now(),
		SnowDepth:   ptr(latest),
		NewSnow24h:  ptr(snow24h),
		NewSnow72h:  ptr(snow72h),
		NewSnow7d:   ptr(snow7d),
		Elevation:   ptr(0), // not exposed by the triplet listing
		Temperature: nil,
		DataSource:  snow.SourceSNOTEL,
	}, nil
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func (s *SnotelSource) soapCall(ctx context.Context, body string) (*soapEnvelope, error) {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, s.baseURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/xml;charset=UTF-8")
		req.Header.Set("SOAPAction", "")
		return req, nil
	}

	resp, err := doResilientRequest(ctx, s.httpCfg, s.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env soapEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode soap response: %w", err)
	}
	return &env, nil
}
