// ===============================
// File: internal/monitor/rules.go
// ===============================
package monitor

import (
	"math"
	"time"
)

// ExitRules holds the take-profit and stop-loss thresholds, both
// expressed as positive percentages of the entry price.
type ExitRules struct {
	TakeProfitPercent float64
	StopLossPercent   float64
}

// Evaluate decides whether a position should be sold at the current
// price. Pure and stateless: no I/O, no clock beyond stamping the
// signal. Returns nil when no rule fires, the position is already
// closed, or the price is unusable.
//
// Ties trigger the exit: profit exactly at the take-profit threshold or
// loss exactly at the stop-loss threshold emits a signal. The two
// thresholds sit on opposite sides of zero, so at most one reason can
// fire per evaluation.
func (r ExitRules) Evaluate(pos Position, currentPrice float64) *TradeSignal {
	if pos.Closed() {
		return nil
	}
	if math.IsNaN(currentPrice) || currentPrice < 0 || pos.BuyPrice <= 0 {
		return nil
	}

	profitPercent := pos.ProfitPercent(currentPrice)

	var reason ExitReason
	switch {
	case r.TakeProfitPercent > 0 && profitPercent >= r.TakeProfitPercent:
		reason = ExitTakeProfit
	case r.StopLossPercent > 0 && profitPercent <= -r.StopLossPercent:
		reason = ExitStopLoss
	default:
		return nil
	}

	return &TradeSignal{
		Token:  pos.Token,
		Side:   SideSell,
		Amount: pos.TokenAmount,
		Reason: reason,
		Time:   time.Now(),
	}
}
