package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holder = "0x3333333333333333333333333333333333333333"

func TestBalanceMissingConfig(t *testing.T) {
	b := NewBalances(BalanceOptions{}, zerolog.Nop())
	_, err := b.Balance(context.Background(), holder)
	assert.ErrorIs(t, err, ErrNotConfigured)

	b = NewBalances(BalanceOptions{RPCURL: "http://localhost"}, zerolog.Nop())
	_, err = b.Balance(context.Background(), "0xnot-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestBalanceConvertsWeiToEther(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		method = req.Method

		w.Header().Set("Content-Type", "application/json")
		// 14.52 ether
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"0xc9816711daac0000"}`))
	}))
	defer srv.Close()

	b := NewBalances(BalanceOptions{RPCURL: srv.URL}, zerolog.Nop())
	defer b.Close()

	balance, err := b.Balance(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, "eth_getBalance", method)
	assert.Equal(t, "14.52", balance.String())
}

func TestBalanceSurfacesRPCErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32000,"message":"header not found"}}`))
	}))
	defer srv.Close()

	b := NewBalances(BalanceOptions{RPCURL: srv.URL}, zerolog.Nop())
	defer b.Close()

	_, err := b.Balance(context.Background(), holder)
	assert.ErrorContains(t, err, "header not found")
}
