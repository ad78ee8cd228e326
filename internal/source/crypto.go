package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RatePulse/internal/domain/repository"
	xhttp "RatePulse/pkg/http"
)

// CryptoSource pulls crypto spot prices from a coingecko-style API:
// GET {base}/simple/price?ids=bitcoin&vs_currencies=cad
// -> {"bitcoin":{"cad":92000.12}}.
type CryptoSource struct {
	name    string
	baseURL string
	apiKey  string
	ids     map[string]string // asset code -> provider id, e.g. BTC -> bitcoin
	client  *xhttp.Client
}

func NewCryptoSource(name, baseURL, apiKey string, ids map[string]string, timeout time.Duration) *CryptoSource {
	if ids == nil {
		ids = map[string]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
			"LTC": "litecoin",
			"XRP": "ripple",
		}
	}
	return &CryptoSource{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		ids:     ids,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (s *CryptoSource) Name() string     { return s.name }
func (s *CryptoSource) Category() string { return CategoryCrypto }

func (s *CryptoSource) Fetch(ctx context.Context, symbol string) (*repository.Quote, error) {
	base, target, err := splitPair(symbol)
	if err != nil {
		return nil, err
	}
	id, ok := s.ids[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no id for %s", ErrUnsupportedSymbol, s.name, base)
	}
	vs := strings.ToLower(target)

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["x-api-key"] = s.apiKey
	}

	var resp map[string]map[string]float64
	err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     s.baseURL + "/simple/price",
		Headers: headers,
		QueryParams: map[string][]string{
			"ids":           {id},
			"vs_currencies": {vs},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("crypto fetch %s: %w", symbol, err)
	}

	v, ok := resp[id][vs]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing %s/%s", ErrUnsupportedSymbol, s.name, id, vs)
	}
	return newQuote(s.name, symbol, v, time.Now())
}

var _ repository.RateSource = (*CryptoSource)(nil)
