package source

import (
	"context"
	"fmt"
	"time"

	"RatePulse/internal/domain/repository"
	xhttp "RatePulse/pkg/http"
)

// ForexSource pulls spot FX mid rates from a frankfurter-style API:
// GET {base}/latest?from=USD&to=CAD -> {"date":"...","rates":{"CAD":1.372}}.
type ForexSource struct {
	name    string
	baseURL string
	client  *xhttp.Client
}

func NewForexSource(name, baseURL string, timeout time.Duration) *ForexSource {
	return &ForexSource{
		name:    name,
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (s *ForexSource) Name() string     { return s.name }
func (s *ForexSource) Category() string { return CategoryForex }

type forexResponse struct {
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

func (s *ForexSource) Fetch(ctx context.Context, symbol string) (*repository.Quote, error) {
	base, target, err := splitPair(symbol)
	if err != nil {
		return nil, err
	}

	var resp forexResponse
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/latest",
		QueryParams: map[string][]string{
			"from": {base},
			"to":   {target},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("forex fetch %s: %w", symbol, err)
	}

	v, ok := resp.Rates[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing %s", ErrUnsupportedSymbol, s.name, target)
	}
	ts := time.Now()
	if t, perr := time.Parse("2006-01-02", resp.Date); perr == nil {
		ts = t
	}
	return newQuote(s.name, symbol, v, ts)
}

var _ repository.RateSource = (*ForexSource)(nil)
