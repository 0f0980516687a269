// =================================
// File: internal/monitor/monitor.go
// =================================
package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/dex"
)

const (
	defaultQuoteTimeout = 10 * time.Second
	defaultSellTimeout  = 25 * time.Minute
	// defaultMaxConcurrent caps quote RPCs in flight per tick. With n
	// open positions all quoting at their timeout, a tick spans up to
	// ceil(n/limit) quote timeouts before the next one fires; raise
	// Config.MaxConcurrent when tracking more positions than this.
	defaultMaxConcurrent = 8
)

// Quoter provides the current price of a token. Satisfied by
// dex.PriceOracle.
type Quoter interface {
	TokenPrice(ctx context.Context, token common.Address) (float64, error)
}

// Trader closes positions. Satisfied by dex.SwapExecutor.
type Trader interface {
	Sell(ctx context.Context, token common.Address, tokenAmount *big.Int) dex.TradeResult
}

// SignalFunc receives every fired trade signal, whether or not autoSell
// acted on it.
type SignalFunc func(TradeSignal)

// Config carries the monitoring loop parameters.
type Config struct {
	Interval time.Duration
	// QuoteTimeout bounds each per-position price fetch so one slow
	// token cannot stall the tick. Defaults to 10s, capped at Interval.
	QuoteTimeout time.Duration
	// SellTimeout bounds an automatic exit end to end. Defaults to a
	// little past the swap deadline window.
	SellTimeout   time.Duration
	AutoSell      bool
	Rules         ExitRules
	MaxConcurrent int
}

// PositionMonitor is the scheduling loop: on a fixed cadence it quotes
// every open position, runs the exit rules and triggers sells. Two
// states, STOPPED and RUNNING; Start and Stop report repeated calls as
// no-ops rather than errors.
type PositionMonitor struct {
	store    *PositionStore
	oracle   Quoter
	executor Trader
	config   Config
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// inflight tracks sells spawned by ticks so Stop can drain them.
	inflight sync.WaitGroup
	signalMu sync.Mutex
}

// New creates a position monitor.
func New(store *PositionStore, oracle Quoter, executor Trader, config Config, logger *zap.Logger) *PositionMonitor {
	if config.QuoteTimeout == 0 {
		config.QuoteTimeout = defaultQuoteTimeout
	}
	if config.QuoteTimeout > config.Interval && config.Interval > 0 {
		config.QuoteTimeout = config.Interval
	}
	if config.SellTimeout == 0 {
		config.SellTimeout = defaultSellTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultMaxConcurrent
	}
	return &PositionMonitor{
		store:    store,
		oracle:   oracle,
		executor: executor,
		config:   config,
		logger:   logger.Named("monitor"),
	}
}

// Start transitions STOPPED→RUNNING and begins periodic ticks. Returns
// false (and logs) when the monitor is already running.
func (m *PositionMonitor) Start(onSignal SignalFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Warn("Monitor already running, ignoring start")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	m.logger.Info("📊 Position monitor started",
		zap.Duration("interval", m.config.Interval),
		zap.Bool("auto_sell", m.config.AutoSell))

	go m.run(ctx, onSignal)
	return true
}

// Stop transitions RUNNING→STOPPED. It prevents further ticks, lets the
// in-flight tick finish and drains any sells it launched; it never
// aborts a swap mid-flight. Returns false when already stopped.
func (m *PositionMonitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Warn("Monitor not running, ignoring stop")
		return false
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.inflight.Wait()

	m.logger.Info("🛑 Position monitor stopped")
	return true
}

// Running reports the current state.
func (m *PositionMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *PositionMonitor) run(ctx context.Context, onSignal SignalFunc) {
	defer close(m.done)

	// First tick immediately, then on the interval.
	m.tick(onSignal)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Monitor loop exiting")
			return
		case <-ticker.C:
			m.tick(onSignal)
		}
	}
}

// tick snapshots the store and evaluates every open position. Positions
// are independent units of work: a failing quote for one never blocks
// the others, and each is individually bounded by QuoteTimeout.
func (m *PositionMonitor) tick(onSignal SignalFunc) {
	positions := m.store.List()

	g := new(errgroup.Group)
	g.SetLimit(m.config.MaxConcurrent)

	for _, pos := range positions {
		if pos.Closed() {
			continue
		}
		pos := pos
		g.Go(func() error {
			m.checkPosition(pos, onSignal)
			return nil
		})
	}

	_ = g.Wait()
}

func (m *PositionMonitor) checkPosition(pos Position, onSignal SignalFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.QuoteTimeout)
	defer cancel()

	currentPrice, err := m.oracle.TokenPrice(ctx, pos.Token)
	if err != nil {
		if errors.Is(err, dex.ErrQuoteUnavailable) {
			m.logger.Debug("Quote unavailable, skipping position this tick",
				zap.String("token", pos.Token.Hex()))
		} else {
			m.logger.Warn("Price check failed",
				zap.String("token", pos.Token.Hex()),
				zap.Error(err))
		}
		return
	}

	now := time.Now()
	m.store.Update(pos.Token, func(p *Position) {
		p.CurrentPrice = currentPrice
		p.UpdatedAt = now
	})

	m.logger.Debug("Position checked",
		zap.String("token", pos.Token.Hex()),
		zap.Float64("current_price", currentPrice),
		zap.Float64("pnl_percent", pos.ProfitPercent(currentPrice)))

	signal := m.config.Rules.Evaluate(pos, currentPrice)
	if signal == nil {
		return
	}

	if !m.config.AutoSell {
		m.emit(onSignal, *signal)
		return
	}

	// Claim the exit before signaling so a racing manual sell and this
	// automatic one can never both submit.
	if !m.store.TryBeginExit(pos.Token) {
		m.logger.Debug("Exit already in flight, skipping signal",
			zap.String("token", pos.Token.Hex()))
		return
	}

	m.emit(onSignal, *signal)

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.executeExit(*signal, currentPrice)
	}()
}

// executeExit runs the automatic sell for a fired signal. It uses a
// detached context so Stop never aborts a swap mid-flight; the sell is
// bounded by SellTimeout instead.
func (m *PositionMonitor) executeExit(signal TradeSignal, currentPrice float64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.SellTimeout)
	defer cancel()

	m.logger.Info("🎯 Exit rule fired, selling position",
		zap.String("token", signal.Token.Hex()),
		zap.String("reason", string(signal.Reason)),
		zap.Float64("price", currentPrice))

	result := m.executor.Sell(ctx, signal.Token, signal.Amount)
	if !result.Success {
		m.store.AbortExit(signal.Token)
		m.logger.Error("Automatic sell failed, position stays open",
			zap.String("token", signal.Token.Hex()),
			zap.String("reason", result.Error))
		return
	}

	exit := Exit{
		Price:  currentPrice,
		Amount: dex.WeiToBNB(result.Amount),
		Reason: signal.Reason,
		Time:   time.Now(),
		TxHash: result.TxHash,
	}
	if err := m.store.Close(signal.Token, exit); err != nil {
		m.logger.Error("Failed to close position after sell",
			zap.String("token", signal.Token.Hex()),
			zap.Error(err))
	}
}

func (m *PositionMonitor) emit(onSignal SignalFunc, signal TradeSignal) {
	if onSignal == nil {
		return
	}
	m.signalMu.Lock()
	defer m.signalMu.Unlock()
	onSignal(signal)
}
