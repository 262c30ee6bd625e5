package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	methodSubmit        = "ledger_submitTransaction"
	methodBalance       = "ledger_getBalance"
	methodStakedBalance = "ledger_getStakedBalance"
	methodBlockNumber   = "ledger_blockNumber"
)

// RPCConfig configures the JSON-RPC ledger client.
type RPCConfig struct {
	Endpoint string
	Timeout  time.Duration
	Headers  map[string]string
}

// RPCClient talks to the ledger node over JSON-RPC.
type RPCClient struct {
	client  *rpc.Client
	timeout time.Duration
}

var errEmptyTxID = errors.New("ledger returned empty transaction id")

// DialRPC connects to the ledger endpoint. HTTP(S) and WebSocket URLs are
// supported.
func DialRPC(ctx context.Context, cfg RPCConfig) (*RPCClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("ledger: endpoint required")
	}
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", endpoint, err)
	}
	for key, value := range cfg.Headers {
		client.SetHeader(key, value)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RPCClient{client: client, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("ledger: client not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.CallContext(callCtx, result, method, args...)
}

// Submit implements Client.
func (c *RPCClient) Submit(ctx context.Context, tx Tx) (TxID, error) {
	var id string
	if err := c.call(ctx, &id, methodSubmit, tx); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errEmptyTxID
	}
	return TxID(id), nil
}

// QueryBalance implements Client.
func (c *RPCClient) QueryBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	return c.queryAmount(ctx, methodBalance, account)
}

// QueryStakedBalance implements Client.
func (c *RPCClient) QueryStakedBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	return c.queryAmount(ctx, methodStakedBalance, account)
}

// BlockHeight implements Client.
func (c *RPCClient) BlockHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := c.call(ctx, &height, methodBlockNumber); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

func (c *RPCClient) queryAmount(ctx context.Context, method, account string) (sdkmath.Int, error) {
	var raw string
	if err := c.call(ctx, &raw, method, account); err != nil {
		return sdkmath.Int{}, err
	}
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(raw))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("ledger: %s returned malformed amount %q", method, raw)
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("ledger: %s returned negative amount %q", method, raw)
	}
	return amount, nil
}
