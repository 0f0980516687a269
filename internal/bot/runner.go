// ================================
// File: internal/bot/runner.go
// ================================
package bot

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/chain"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/config"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/dex"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/logger"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/monitor"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/wallet"
)

// Runner wires the components together and owns their lifecycle.
type Runner struct {
	log        *logger.Logger
	logger     *zap.Logger
	config     *config.Config
	client     *chain.Client
	wallet     *wallet.Wallet
	service    *TradingService
	monitor    *monitor.PositionMonitor
	shutdownCh chan os.Signal
}

// NewRunner creates an uninitialized runner.
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{
		log:        log,
		logger:     log.WithComponent("runner"),
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Initialize constructs every component from a validated configuration.
func (r *Runner) Initialize(ctx context.Context, cfg *config.Config) error {
	r.config = cfg

	client, err := chain.Dial(ctx, cfg.RPCURL, r.log.Logger)
	if err != nil {
		return err
	}
	r.client = client

	w, err := wallet.New(cfg.PrivateKey, client, r.log.Logger)
	if err != nil {
		return err
	}
	r.wallet = w

	router := dex.NewRouter(
		common.HexToAddress(cfg.RouterAddress),
		common.HexToAddress(cfg.WBNBAddress),
		client,
		r.log.Logger,
	)
	oracle := dex.NewPriceOracle(router, client, r.log.Logger)
	executor := dex.NewSwapExecutor(router, w, client, dex.ExecutorConfig{
		SlippageBps: cfg.SlippageBps(),
		GasPrice:    new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9)),
		GasLimit:    cfg.GasLimit,
	}, r.log.Logger)

	store := monitor.NewPositionStore(r.log.Logger)

	r.monitor = monitor.New(store, oracle, executor, monitor.Config{
		Interval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		AutoSell: cfg.AutoSell,
		Rules: monitor.ExitRules{
			TakeProfitPercent: cfg.TakeProfitPercent,
			StopLossPercent:   cfg.StopLossPercent,
		},
	}, r.log.Logger)

	r.service = NewTradingService(&TradingServiceConfig{
		Logger:    r.log,
		Executor:  executor,
		Oracle:    oracle,
		Tokens:    client,
		Store:     store,
		MaxBuyWei: bnbToWei(cfg.MaxBuyAmount),
	})

	r.logBanner(ctx)
	return nil
}

// Service returns the trading service for manual operations.
func (r *Runner) Service() *TradingService {
	return r.service
}

// Run starts the monitor and blocks until a shutdown signal arrives or
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	r.monitor.Start(func(sig monitor.TradeSignal) {
		r.logger.Info("📣 Trade signal",
			zap.String("token", sig.Token.Hex()),
			zap.String("side", string(sig.Side)),
			zap.String("reason", string(sig.Reason)))
	})

	select {
	case sig := <-r.shutdownCh:
		r.logger.Info("📡 Signal received: " + sig.String())
	case <-ctx.Done():
		r.logger.Info("Context cancelled")
	}

	return r.Shutdown()
}

// Shutdown drains the monitor and tears down shared resources.
func (r *Runner) Shutdown() error {
	handler := NewShutdownHandler(r.logger, 30*time.Second)
	handler.AddFunc("monitor", func() error {
		r.monitor.Stop()
		return nil
	})
	handler.Add("chain_client", r.client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	handler.Shutdown(ctx)

	r.logger.Info("👋 Bot shutting down gracefully")
	return nil
}

func (r *Runner) logBanner(ctx context.Context) {
	balance := "unknown"
	if bal, err := r.wallet.Balance(ctx); err != nil {
		r.log.LogError("Failed to read wallet balance", err,
			zap.String("wallet", r.wallet.Address().Hex()))
	} else {
		balance = fmt.Sprintf("%.6f BNB", dex.WeiToBNB(bal))
	}

	r.logger.Info("=== BNB Sniper Bot Initialized ===",
		zap.String("wallet", r.wallet.Address().Hex()),
		zap.String("balance", balance),
		zap.Float64("max_buy_amount", r.config.MaxBuyAmount),
		zap.Float64("slippage_percent", r.config.SlippagePercent),
		zap.Float64("take_profit_percent", r.config.TakeProfitPercent),
		zap.Float64("stop_loss_percent", r.config.StopLossPercent),
		zap.Bool("auto_sell", r.config.AutoSell))
}

// bnbToWei converts a BNB amount to wei, truncating below 1 wei.
func bnbToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return wei
}
