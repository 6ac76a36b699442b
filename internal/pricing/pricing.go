// Package pricing converts between the ledger's native currency (wei
// units) and US dollars. Conversion failures are ordinary errors the
// caller absorbs; nothing here may take the process down.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

const weiPerToken = 1e18

type Oracle interface {
	NativeToUSD(ctx context.Context, wei *big.Int) (float64, error)
	USDToNative(ctx context.Context, usd float64) (*big.Int, error)
}

// Fixed converts at a constant rate. The local profile and tests use
// it; a deployment points at the HTTP oracle instead.
type Fixed struct {
	USDPerToken float64
}

func (f Fixed) NativeToUSD(_ context.Context, wei *big.Int) (float64, error) {
	if f.USDPerToken <= 0 {
		return 0, fmt.Errorf("fixed rate not configured")
	}
	if wei == nil {
		return 0, fmt.Errorf("nil amount")
	}
	tokens, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(weiPerToken)).Float64()
	return tokens * f.USDPerToken, nil
}

func (f Fixed) USDToNative(_ context.Context, usd float64) (*big.Int, error) {
	if f.USDPerToken <= 0 {
		return nil, fmt.Errorf("fixed rate not configured")
	}
	if usd < 0 {
		return nil, fmt.Errorf("negative amount")
	}
	wei := new(big.Float).Mul(big.NewFloat(usd/f.USDPerToken), big.NewFloat(weiPerToken))
	out, _ := wei.Int(nil)
	return out, nil
}

// HTTPOracle asks an external price feed for the current token rate
// and converts locally.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
}

func NewHTTPOracle(endpoint string) *HTTPOracle {
	return &HTTPOracle{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type rateResponse struct {
	USDPerToken float64 `json:"usd_per_token"`
}

func (o *HTTPOracle) rate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/v1/rate", nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("price feed returned %s", resp.Status)
	}
	var decoded rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	if decoded.USDPerToken <= 0 {
		return 0, fmt.Errorf("price feed returned non-positive rate %g", decoded.USDPerToken)
	}
	return decoded.USDPerToken, nil
}

func (o *HTTPOracle) NativeToUSD(ctx context.Context, wei *big.Int) (float64, error) {
	r, err := o.rate(ctx)
	if err != nil {
		return 0, err
	}
	return Fixed{USDPerToken: r}.NativeToUSD(ctx, wei)
}

func (o *HTTPOracle) USDToNative(ctx context.Context, usd float64) (*big.Int, error) {
	r, err := o.rate(ctx)
	if err != nil {
		return nil, err
	}
	return Fixed{USDPerToken: r}.USDToNative(ctx, usd)
}
