// ==================================
// File: internal/dex/oracle_test.go
// ==================================
package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenPrice(t *testing.T) {
	oneToken := big.NewInt(1e18)
	out := big.NewInt(25e14) // 0.0025 BNB

	router := NewRouter(testRouterAddr, testWBNBAddr, &fakeCaller{amounts: []*big.Int{oneToken, out}}, zap.NewNop())
	oracle := NewPriceOracle(router, &fakeTokens{decimals: 18}, zap.NewNop())

	price, err := oracle.TokenPrice(context.Background(), testTokenAddr)
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, price, 1e-12)
}

func TestTokenPriceUnavailable(t *testing.T) {
	router := NewRouter(testRouterAddr, testWBNBAddr, &fakeCaller{err: errors.New("execution reverted")}, zap.NewNop())
	oracle := NewPriceOracle(router, &fakeTokens{decimals: 18}, zap.NewNop())

	_, err := oracle.TokenPrice(context.Background(), testTokenAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestWeiToBNB(t *testing.T) {
	assert.Equal(t, 0.0, WeiToBNB(nil))
	assert.Equal(t, 1.0, WeiToBNB(big.NewInt(1e18)))
	assert.InDelta(t, 0.5, WeiToBNB(big.NewInt(5e17)), 1e-12)
}
