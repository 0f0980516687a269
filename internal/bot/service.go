// ================================
// File: internal/bot/service.go
// ================================
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/dex"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/logger"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/monitor"
)

// ErrExitInFlight rejects a manual sell while another exit for the same
// position is already being executed.
var ErrExitInFlight = errors.New("an exit for this position is already in flight")

// Executor is the swap capability the service needs. Satisfied by
// dex.SwapExecutor.
type Executor interface {
	Buy(ctx context.Context, token common.Address, bnbAmount *big.Int) dex.TradeResult
	Sell(ctx context.Context, token common.Address, tokenAmount *big.Int) dex.TradeResult
}

// Quoter is the price capability the service needs. Satisfied by
// dex.PriceOracle.
type Quoter interface {
	TokenPrice(ctx context.Context, token common.Address) (float64, error)
}

// DecimalsReader reads a token's decimals. Satisfied by chain.Client.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context, token common.Address) uint8
}

// TradingService provides the manual buy/sell entry points and shares
// the position store with the automatic monitor. Manual and automatic
// exits go through the same claim-and-close path, so at most one sell
// per position can ever succeed.
type TradingService struct {
	logger    *logger.Logger
	executor  Executor
	oracle    Quoter
	tokens    DecimalsReader
	store     *monitor.PositionStore
	maxBuyWei *big.Int
}

// TradingServiceConfig configuration for TradingService
type TradingServiceConfig struct {
	Logger    *logger.Logger
	Executor  Executor
	Oracle    Quoter
	Tokens    DecimalsReader
	Store     *monitor.PositionStore
	MaxBuyWei *big.Int
}

// NewTradingService creates a new trading service
func NewTradingService(config *TradingServiceConfig) *TradingService {
	return &TradingService{
		logger:    config.Logger,
		executor:  config.Executor,
		oracle:    config.Oracle,
		tokens:    config.Tokens,
		store:     config.Store,
		maxBuyWei: config.MaxBuyWei,
	}
}

// Buy acquires a token position. A nil or zero amount falls back to the
// configured max buy size, and any request above the cap is clamped.
// No position is created on a failed buy.
func (s *TradingService) Buy(ctx context.Context, token common.Address, bnbAmount *big.Int) (monitor.Position, error) {
	log := s.logger.WithOperation("manual_buy")

	amount := bnbAmount
	if amount == nil || amount.Sign() == 0 {
		amount = s.maxBuyWei
	}
	if amount.Cmp(s.maxBuyWei) > 0 {
		log.Warn("Buy amount exceeds max_buy_amount, clamping",
			zap.String("requested", amount.String()),
			zap.String("max", s.maxBuyWei.String()))
		amount = s.maxBuyWei
	}

	log.Info("💰 Buying token",
		zap.String("token", token.Hex()),
		zap.String("bnb_in", amount.String()))

	result := s.executor.Buy(ctx, token, amount)
	if !result.Success {
		log.Error("Buy failed",
			zap.String("token", token.Hex()),
			zap.String("reason", result.Error))
		return monitor.Position{}, fmt.Errorf("buy failed: %s", result.Error)
	}

	now := time.Now()
	pos := monitor.Position{
		Token:       token,
		BuyPrice:    s.entryPrice(ctx, token, amount, result.Amount),
		BuyAmount:   dex.WeiToBNB(amount),
		BuyTxHash:   result.TxHash,
		TokenAmount: result.Amount,
		BuyTime:     now,
		UpdatedAt:   now,
	}
	pos.CurrentPrice = pos.BuyPrice

	if err := s.store.Create(pos); err != nil {
		return monitor.Position{}, fmt.Errorf("buy succeeded but position could not be recorded: %w", err)
	}

	s.logger.WithTransaction(result.TxHash).Info("✅ Position opened",
		zap.String("token", token.Hex()),
		zap.Float64("entry_price", pos.BuyPrice),
		zap.String("token_amount", result.Amount.String()))

	return pos, nil
}

// Sell manually closes a position, selling the realized token amount
// captured at buy time. The position stays OPEN when the sell fails.
func (s *TradingService) Sell(ctx context.Context, token common.Address) error {
	log := s.logger.WithOperation("manual_sell")

	pos, ok := s.store.Get(token)
	if !ok {
		return fmt.Errorf("%w: %s", monitor.ErrPositionNotFound, token.Hex())
	}
	if pos.Closed() {
		return fmt.Errorf("%w: %s", monitor.ErrPositionClosed, token.Hex())
	}
	if !s.store.TryBeginExit(token) {
		return fmt.Errorf("%w: %s", ErrExitInFlight, token.Hex())
	}

	log.Info("💸 Selling position manually", zap.String("token", token.Hex()))

	result := s.executor.Sell(ctx, token, pos.TokenAmount)
	if !result.Success {
		s.store.AbortExit(token)
		log.Error("Manual sell failed",
			zap.String("token", token.Hex()),
			zap.String("reason", result.Error))
		return fmt.Errorf("sell failed: %s", result.Error)
	}

	currentPrice, err := s.oracle.TokenPrice(ctx, token)
	if err != nil {
		currentPrice = pos.CurrentPrice
	}

	if err := s.store.Close(token, monitor.Exit{
		Price:  currentPrice,
		Amount: dex.WeiToBNB(result.Amount),
		Reason: monitor.ExitManual,
		Time:   time.Now(),
		TxHash: result.TxHash,
	}); err != nil {
		return err
	}

	s.logger.WithTransaction(result.TxHash).Info("✅ Position sold",
		zap.String("token", token.Hex()),
		zap.Float64("bnb_out", dex.WeiToBNB(result.Amount)))
	return nil
}

// Positions returns a snapshot of all tracked positions.
func (s *TradingService) Positions() []monitor.Position {
	return s.store.List()
}

// entryPrice quotes the token right after the buy; when the quote is
// unavailable it derives the effective BNB-per-whole-token price from
// what was actually spent and received:
// (spentWei / 1e18) / (receivedRaw / 10^decimals).
func (s *TradingService) entryPrice(ctx context.Context, token common.Address, spentWei, receivedTokens *big.Int) float64 {
	price, err := s.oracle.TokenPrice(ctx, token)
	if err == nil && price > 0 {
		return price
	}

	if receivedTokens == nil || receivedTokens.Sign() == 0 {
		return 0
	}
	decimals := s.tokens.TokenDecimals(ctx, token)
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	effective := new(big.Float).SetInt(new(big.Int).Mul(spentWei, oneToken))
	effective.Quo(effective, new(big.Float).SetInt(receivedTokens))
	effective.Quo(effective, big.NewFloat(1e18))
	out, _ := effective.Float64()
	return out
}
