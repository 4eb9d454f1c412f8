// Package fetcher reads on-chain account state for the risk engine.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-guard/internal/risk"
)

// weiExponent scales wei to ether.
const weiExponent = -18

var (
	// ErrNotConfigured is returned when no RPC endpoint is set.
	ErrNotConfigured = errors.New("ethereum rpc url not configured")
	// ErrInvalidAddress is returned for accounts that are not 20-byte hex.
	ErrInvalidAddress = errors.New("invalid ethereum address")
)

// BalanceOptions parameterise the on-chain balance fetcher.
type BalanceOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Balances reads native balances through an Ethereum JSON-RPC endpoint.
type Balances struct {
	opts      BalanceOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewBalances builds a new balance fetcher. The connection is dialled
// lazily on first use.
func NewBalances(opts BalanceOptions, logger zerolog.Logger) *Balances {
	return &Balances{opts: opts, logger: logger.With().Str("component", "balance_fetcher").Logger()}
}

// Balance returns the latest native balance of account in ether.
func (b *Balances) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	if b.opts.RPCURL == "" {
		return decimal.Decimal{}, ErrNotConfigured
	}
	if !common.IsHexAddress(account) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAddress, account)
	}

	timeout := b.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := b.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	wei, err := client.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("eth_getBalance %s: %w", account, err)
	}

	balance := decimal.NewFromBigInt(wei, weiExponent)
	b.logger.Debug().Str("account", account).Str("balance", balance.String()).Msg("balance fetched")
	return balance, nil
}

// Close releases the RPC connection.
func (b *Balances) Close() {
	b.clientMux.Lock()
	defer b.clientMux.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}

func (b *Balances) getClient(ctx context.Context) (*ethclient.Client, error) {
	b.clientMux.Lock()
	defer b.clientMux.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	client, err := ethclient.DialContext(ctx, b.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.opts.RPCURL, err)
	}
	b.client = client
	return client, nil
}

var _ risk.BalanceSource = (*Balances)(nil)
