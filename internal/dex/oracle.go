// =============================
// File: internal/dex/oracle.go
// =============================
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrQuoteUnavailable marks a price that could not be determined: the
// token has no liquidity path against WBNB or the RPC read failed.
// Callers must treat it as "unknown", never as a price of zero.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// TokenReader reads BEP-20 state. Satisfied by chain.Client.
type TokenReader interface {
	TokenDecimals(ctx context.Context, token common.Address) uint8
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// PriceOracle quotes the current BNB price of a token through the AMM's
// constant-product quoting function.
type PriceOracle struct {
	router *Router
	tokens TokenReader
	logger *zap.Logger
}

// NewPriceOracle creates a price oracle over the given router binding.
func NewPriceOracle(router *Router, tokens TokenReader, logger *zap.Logger) *PriceOracle {
	return &PriceOracle{
		router: router,
		tokens: tokens,
		logger: logger.Named("oracle"),
	}
}

// TokenPrice returns the BNB obtainable for one whole token along the
// [token, WBNB] path. One outbound read per call; retry policy belongs
// to the caller.
func (o *PriceOracle) TokenPrice(ctx context.Context, token common.Address) (float64, error) {
	decimals := o.tokens.TokenDecimals(ctx, token)
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	amounts, err := o.router.GetAmountsOut(ctx, oneToken, []common.Address{token, o.router.WBNB()})
	if err != nil {
		o.logger.Debug("Price quote failed",
			zap.String("token", token.Hex()),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	return WeiToBNB(amounts[len(amounts)-1]), nil
}

// WeiToBNB converts a raw wei amount to a float64 BNB value for display
// and threshold math. On-chain amounts stay in *big.Int everywhere else.
func WeiToBNB(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
