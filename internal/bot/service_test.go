// =====================================
// File: internal/bot/service_test.go
// =====================================
package bot

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/dex"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/logger"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/monitor"
)

var testToken = common.HexToAddress("0x1111111111111111111111111111111111111111")

type fakeExecutor struct {
	buyResult  dex.TradeResult
	sellResult dex.TradeResult
	lastBuyIn  *big.Int
	lastSellIn *big.Int
	sells      int
}

func (f *fakeExecutor) Buy(_ context.Context, _ common.Address, bnbAmount *big.Int) dex.TradeResult {
	f.lastBuyIn = bnbAmount
	return f.buyResult
}

func (f *fakeExecutor) Sell(_ context.Context, _ common.Address, tokenAmount *big.Int) dex.TradeResult {
	f.lastSellIn = tokenAmount
	f.sells++
	return f.sellResult
}

type fakeOracle struct {
	price float64
	err   error
}

func (f *fakeOracle) TokenPrice(_ context.Context, _ common.Address) (float64, error) {
	return f.price, f.err
}

type fakeDecimals struct {
	decimals uint8
}

func (f *fakeDecimals) TokenDecimals(_ context.Context, _ common.Address) uint8 {
	if f.decimals == 0 {
		return 18
	}
	return f.decimals
}

func newTestService(exec *fakeExecutor, oracle *fakeOracle) (*TradingService, *monitor.PositionStore) {
	return newTestServiceWithDecimals(exec, oracle, 18)
}

func newTestServiceWithDecimals(exec *fakeExecutor, oracle *fakeOracle, decimals uint8) (*TradingService, *monitor.PositionStore) {
	store := monitor.NewPositionStore(zap.NewNop())
	svc := NewTradingService(&TradingServiceConfig{
		Logger:    logger.NewNop(),
		Executor:  exec,
		Oracle:    oracle,
		Tokens:    &fakeDecimals{decimals: decimals},
		Store:     store,
		MaxBuyWei: big.NewInt(1e17), // 0.1 BNB
	})
	return svc, store
}

func successfulBuy(tokens int64) dex.TradeResult {
	return dex.TradeResult{Success: true, TxHash: "0xbuy", Amount: big.NewInt(tokens)}
}

func TestBuyCreatesPosition(t *testing.T) {
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, store := newTestService(exec, &fakeOracle{price: 0.002})

	pos, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)

	assert.Equal(t, testToken, pos.Token)
	assert.Equal(t, 0.002, pos.BuyPrice)
	assert.Equal(t, "0xbuy", pos.BuyTxHash)
	assert.Equal(t, int64(5000), pos.TokenAmount.Int64())
	assert.InDelta(t, 0.01, pos.BuyAmount, 1e-12)

	stored, ok := store.Get(testToken)
	require.True(t, ok)
	assert.False(t, stored.Closed())
}

func TestBuyDefaultsToMaxAmount(t *testing.T) {
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, _ := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1e17), exec.lastBuyIn.Int64())
}

func TestBuyClampsToMaxAmount(t *testing.T) {
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, _ := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(5e17))
	require.NoError(t, err)
	assert.Equal(t, int64(1e17), exec.lastBuyIn.Int64())
}

func TestBuyFailureCreatesNoPosition(t *testing.T) {
	exec := &fakeExecutor{buyResult: dex.TradeResult{Success: false, Error: "reverted"}}
	svc, store := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.Error(t, err)
	assert.Zero(t, store.OpenCount())
}

func TestBuyDerivesEntryPriceWhenQuoteFails(t *testing.T) {
	// 0.01 BNB for 5000 raw units of an 18-decimal token: the effective
	// price is 0.01 / 5000e-18 = 2e12 BNB per whole token.
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, _ := newTestService(exec, &fakeOracle{err: dex.ErrQuoteUnavailable})

	pos, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	assert.InDelta(t, 2e12, pos.BuyPrice, 1e3)
}

func TestBuyEntryPriceFallbackHonorsDecimals(t *testing.T) {
	// 0.01 BNB for 5000 whole tokens of a 6-decimal token (5000e6 raw
	// units): the price is 2e-6 BNB per whole token, the same scale the
	// oracle quotes in. Raw-unit division alone would be off by 1e12 and
	// make the exit rules see a wipeout at an unchanged price.
	exec := &fakeExecutor{buyResult: successfulBuy(5000e6)}
	svc, _ := newTestServiceWithDecimals(exec, &fakeOracle{err: dex.ErrQuoteUnavailable}, 6)

	pos, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	assert.InDelta(t, 2e-6, pos.BuyPrice, 1e-15)

	assert.InDelta(t, 0, pos.ProfitPercent(2e-6), 1e-6,
		"an unchanged oracle price must read as flat PnL")
}

func TestBuyRejectsDuplicatePosition(t *testing.T) {
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, _ := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)

	_, err = svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrPositionExists)
}

func TestSellClosesPositionManually(t *testing.T) {
	exec := &fakeExecutor{
		buyResult:  successfulBuy(5000),
		sellResult: dex.TradeResult{Success: true, TxHash: "0xsell", Amount: big.NewInt(2e16)},
	}
	svc, store := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	require.NoError(t, svc.Sell(context.Background(), testToken))

	pos, _ := store.Get(testToken)
	require.True(t, pos.Closed())
	assert.Equal(t, monitor.ExitManual, pos.Exit.Reason)
	assert.Equal(t, "0xsell", pos.Exit.TxHash)
	assert.Equal(t, int64(5000), exec.lastSellIn.Int64(),
		"the realized buy amount is what gets sold")
}

func TestSellFailureKeepsPositionOpen(t *testing.T) {
	exec := &fakeExecutor{
		buyResult:  successfulBuy(5000),
		sellResult: dex.TradeResult{Success: false, Error: "reverted"},
	}
	svc, store := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	require.Error(t, svc.Sell(context.Background(), testToken))

	pos, _ := store.Get(testToken)
	assert.False(t, pos.Closed())

	// The failed exit released its claim; a retry succeeds.
	exec.sellResult = dex.TradeResult{Success: true, TxHash: "0xsell", Amount: big.NewInt(2e16)}
	require.NoError(t, svc.Sell(context.Background(), testToken))
	assert.Equal(t, 2, exec.sells)
}

func TestSellUnknownToken(t *testing.T) {
	svc, _ := newTestService(&fakeExecutor{}, &fakeOracle{})

	err := svc.Sell(context.Background(), testToken)
	assert.ErrorIs(t, err, monitor.ErrPositionNotFound)
}

func TestSellClosedPosition(t *testing.T) {
	exec := &fakeExecutor{
		buyResult:  successfulBuy(5000),
		sellResult: dex.TradeResult{Success: true, TxHash: "0xsell", Amount: big.NewInt(2e16)},
	}
	svc, _ := newTestService(exec, &fakeOracle{price: 0.002})

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	require.NoError(t, svc.Sell(context.Background(), testToken))

	err = svc.Sell(context.Background(), testToken)
	assert.ErrorIs(t, err, monitor.ErrPositionClosed)
	assert.Equal(t, 1, exec.sells)
}

func TestPositionsSnapshot(t *testing.T) {
	exec := &fakeExecutor{buyResult: successfulBuy(5000)}
	svc, _ := newTestService(exec, &fakeOracle{price: 0.002})

	assert.Empty(t, svc.Positions())

	_, err := svc.Buy(context.Background(), testToken, big.NewInt(1e16))
	require.NoError(t, err)
	assert.Len(t, svc.Positions(), 1)
}
