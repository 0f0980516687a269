// ==================================
// File: internal/monitor/position.go
// ==================================
package monitor

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExitReason explains why a position was (or should be) closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitManual     ExitReason = "manual"
)

// Side is the direction of a trade signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Exit records the terminal state of a closed position. A position with
// a non-nil Exit is CLOSED and immutable; the pointer makes a
// half-closed state unrepresentable.
type Exit struct {
	Price  float64 // BNB per token at close
	Amount float64 // BNB received
	Reason ExitReason
	Time   time.Time
	TxHash string
}

// Position is one tracked holding, keyed by token address.
type Position struct {
	Token     common.Address
	BuyPrice  float64 // BNB per token at entry
	BuyAmount float64 // BNB spent
	BuyTxHash string
	// TokenAmount is the realized raw token balance captured from the
	// buy receipt. Sells use this, never a placeholder.
	TokenAmount *big.Int
	BuyTime     time.Time

	CurrentPrice float64
	UpdatedAt    time.Time

	Exit *Exit // nil while OPEN
}

// Closed reports whether the position has been sold.
func (p *Position) Closed() bool {
	return p.Exit != nil
}

// ProfitPercent returns the percentage change of currentPrice against
// the entry price.
func (p *Position) ProfitPercent(currentPrice float64) float64 {
	if p.BuyPrice <= 0 {
		return 0
	}
	return ((currentPrice - p.BuyPrice) / p.BuyPrice) * 100
}

// TradeSignal is emitted when an exit rule fires. Ephemeral: consumed by
// the monitor loop and forwarded to the observer callback.
type TradeSignal struct {
	Token  common.Address
	Side   Side
	Amount *big.Int // suggested raw token amount
	Reason ExitReason
	Time   time.Time
}
