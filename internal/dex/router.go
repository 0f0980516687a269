// =============================
// File: internal/dex/router.go
// =============================
package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Subset of the PancakeSwap Router V2 ABI the bot uses: the
// constant-product quoting function and the two swap directions.
const routerABIJSON = `[
	{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var routerABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("dex: invalid router ABI: %v", err))
	}
	routerABI = parsed
}

// ContractCaller executes read-only contract calls. Satisfied by
// chain.Client; tests supply fakes.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Router binds the AMM router contract: quoting reads and swap calldata
// construction. It never submits transactions itself.
type Router struct {
	address common.Address
	wbnb    common.Address
	caller  ContractCaller
	logger  *zap.Logger
}

// NewRouter creates a router binding for the given contract addresses.
func NewRouter(address, wbnb common.Address, caller ContractCaller, logger *zap.Logger) *Router {
	return &Router{
		address: address,
		wbnb:    wbnb,
		caller:  caller,
		logger:  logger.Named("router"),
	}
}

// Address returns the router contract address.
func (r *Router) Address() common.Address {
	return r.address
}

// WBNB returns the wrapped-BNB token address used as the base currency.
func (r *Router) WBNB() common.Address {
	return r.wbnb
}

// GetAmountsOut quotes the expected output amounts for an exact input
// along the given path.
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}

	results, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getAmountsOut result: %w", err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("getAmountsOut returned %d values, want 1", len(results))
	}

	amounts, ok := results[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getAmountsOut result type %T", results[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut returned %d amounts for %d hops", len(amounts), len(path))
	}
	return amounts, nil
}

// SwapExactBNBForTokensData builds calldata for a buy. The BNB input is
// attached as the transaction value, not a calldata argument.
func (r *Router) SwapExactBNBForTokensData(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("swapExactETHForTokens", amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactETHForTokens: %w", err)
	}
	return data, nil
}

// SwapExactTokensForBNBData builds calldata for a sell.
func (r *Router) SwapExactTokensForBNBData(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactTokensForETH: %w", err)
	}
	return data, nil
}
