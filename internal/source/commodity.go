package source

import (
	"context"
	"fmt"
	"time"

	"RatePulse/internal/domain/repository"
	xhttp "RatePulse/pkg/http"
)

// CommoditySource pulls precious-metal rates from a metals-api-style API:
// GET {base}/latest?access_key=K&base=XAU&symbols=CAD
// -> {"success":true,"timestamp":1700000000,"rates":{"CAD":2600.5}}.
type CommoditySource struct {
	name    string
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

func NewCommoditySource(name, baseURL, apiKey string, timeout time.Duration) *CommoditySource {
	return &CommoditySource{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (s *CommoditySource) Name() string     { return s.name }
func (s *CommoditySource) Category() string { return CategoryCommodities }

type commodityResponse struct {
	Success   bool               `json:"success"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
}

func (s *CommoditySource) Fetch(ctx context.Context, symbol string) (*repository.Quote, error) {
	base, target, err := splitPair(symbol)
	if err != nil {
		return nil, err
	}

	var resp commodityResponse
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/latest",
		QueryParams: map[string][]string{
			"access_key": {s.apiKey},
			"base":       {base},
			"symbols":    {target},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("commodity fetch %s: %w", symbol, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("commodity fetch %s: provider reported failure", symbol)
	}

	v, ok := resp.Rates[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing %s", ErrUnsupportedSymbol, s.name, target)
	}
	ts := time.Now()
	if resp.Timestamp > 0 {
		ts = time.Unix(resp.Timestamp, 0)
	}
	return newQuote(s.name, symbol, v, ts)
}

var _ repository.RateSource = (*CommoditySource)(nil)
