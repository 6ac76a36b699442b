package pricing

import (
	"context"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFixedRoundTrip(t *testing.T) {
	f := Fixed{USDPerToken: 2000}

	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	usd, err := f.NativeToUSD(context.Background(), oneToken)
	if err != nil {
		t.Fatalf("native to usd: %v", err)
	}
	if math.Abs(usd-2000) > 1e-6 {
		t.Fatalf("expected 2000 USD, got %g", usd)
	}

	wei, err := f.USDToNative(context.Background(), 1000)
	if err != nil {
		t.Fatalf("usd to native: %v", err)
	}
	half := new(big.Int).Div(oneToken, big.NewInt(2))
	diff := new(big.Int).Sub(wei, half)
	if diff.CmpAbs(big.NewInt(1e9)) > 0 {
		t.Fatalf("expected about half a token, got %s", wei)
	}
}

func TestFixedUnconfigured(t *testing.T) {
	f := Fixed{}
	if _, err := f.NativeToUSD(context.Background(), big.NewInt(1)); err == nil {
		t.Fatal("expected error for unconfigured rate")
	}
}

func TestHTTPOracleRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usd_per_token": 1500}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL)
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	usd, err := o.NativeToUSD(context.Background(), oneToken)
	if err != nil {
		t.Fatalf("native to usd: %v", err)
	}
	if math.Abs(usd-1500) > 1e-6 {
		t.Fatalf("expected 1500 USD, got %g", usd)
	}
}

func TestHTTPOracleBadRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"usd_per_token": 0}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL)
	if _, err := o.USDToNative(context.Background(), 5); err == nil {
		t.Fatal("expected error for zero rate")
	}
}
