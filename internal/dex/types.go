// ==========================================
// File: internal/dex/types.go
// ==========================================
package dex

import "math/big"

// TradeResult is the outcome of one swap attempt. Failure is a value,
// not a control-flow interruption: callers inspect Success and Error.
type TradeResult struct {
	Success bool
	TxHash  string
	// Amount is the realized output in raw units: token units for buys,
	// wei for sells. Taken from the receipt logs, not the pre-trade
	// estimate, when the logs are parseable.
	Amount *big.Int
	Error  string
}

func failedResult(err error) TradeResult {
	return TradeResult{Error: err.Error()}
}
