// ==============================
// File: internal/chain/client.go
// ==============================
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// DefaultTokenDecimals is assumed when a token contract does not answer
// the decimals() call. Virtually every BEP-20 token uses 18.
const DefaultTokenDecimals uint8 = 18

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ERC-20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// Client wraps the JSON-RPC connection shared by all components. Only
// read calls go through it directly; writes go through the wallet.
type Client struct {
	eth    *ethclient.Client
	logger *zap.Logger

	decimalsMu    sync.RWMutex
	decimalsCache map[common.Address]uint8
}

// Dial connects to the given JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return &Client{
		eth:           eth,
		logger:        logger.Named("chain"),
		decimalsCache: make(map[common.Address]uint8),
	}, nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native BNB balance of an account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, account, nil)
}

// ChainID returns the chain identifier used for EIP-155 signing.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// PendingNonceAt returns the next nonce for an account including
// pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt for a mined transaction, or
// ethereum.NotFound while it is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// TokenBalance returns the raw BEP-20 balance of owner for the given token.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf result: %w", err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values, want 1", len(results))
	}

	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

// TokenDecimals returns the decimals of a BEP-20 token, falling back to
// DefaultTokenDecimals when the contract does not implement the call.
// Results are cached for the lifetime of the client.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) uint8 {
	c.decimalsMu.RLock()
	if dec, ok := c.decimalsCache[token]; ok {
		c.decimalsMu.RUnlock()
		return dec
	}
	c.decimalsMu.RUnlock()

	dec := DefaultTokenDecimals
	data, err := erc20ABI.Pack("decimals")
	if err == nil {
		out, callErr := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if callErr != nil {
			c.logger.Debug("decimals() call failed, assuming 18",
				zap.String("token", token.Hex()),
				zap.Error(callErr))
		} else if results, unpackErr := erc20ABI.Unpack("decimals", out); unpackErr == nil && len(results) == 1 {
			if d, ok := results[0].(uint8); ok {
				dec = d
			}
		}
	}

	c.decimalsMu.Lock()
	c.decimalsCache[token] = dec
	c.decimalsMu.Unlock()
	return dec
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() error {
	c.eth.Close()
	return nil
}
