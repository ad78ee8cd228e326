package source

import (
	"context"
	"fmt"
	"time"

	"RatePulse/internal/domain/repository"
	xhttp "RatePulse/pkg/http"
)

// YieldSource pulls bond-yield observations from a FRED-style API:
// GET {base}/series/observations?series_id=DGS10&api_key=K&file_type=json
// -> {"observations":[{"date":"...","value":"4.12"}, ...]}.
type YieldSource struct {
	name    string
	baseURL string
	apiKey  string
	series  map[string]string // symbol -> provider series id
	client  *xhttp.Client
}

func NewYieldSource(name, baseURL, apiKey string, series map[string]string, timeout time.Duration) *YieldSource {
	if series == nil {
		series = map[string]string{
			"UST10Y": "DGS10",
			"UST02Y": "DGS2",
		}
	}
	return &YieldSource{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		series:  series,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (s *YieldSource) Name() string     { return s.name }
func (s *YieldSource) Category() string { return CategoryYields }

type yieldResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func (s *YieldSource) Fetch(ctx context.Context, symbol string) (*repository.Quote, error) {
	seriesID, ok := s.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no series for %s", ErrUnsupportedSymbol, s.name, symbol)
	}

	var resp yieldResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/series/observations",
		QueryParams: map[string][]string{
			"series_id":  {seriesID},
			"api_key":    {s.apiKey},
			"file_type":  {"json"},
			"sort_order": {"desc"},
			"limit":      {"1"},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("yield fetch %s: %w", symbol, err)
	}
	if len(resp.Observations) == 0 {
		return nil, fmt.Errorf("yield fetch %s: no observations", symbol)
	}

	obs := resp.Observations[0]
	var v float64
	if _, err := fmt.Sscanf(obs.Value, "%f", &v); err != nil {
		return nil, fmt.Errorf("%w: %s value %q", ErrBadValue, s.name, obs.Value)
	}
	ts := time.Now()
	if t, perr := time.Parse("2006-01-02", obs.Date); perr == nil {
		ts = t
	}
	return newQuote(s.name, symbol, v, ts)
}

var _ repository.RateSource = (*YieldSource)(nil)
