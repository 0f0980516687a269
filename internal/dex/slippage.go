// internal/dex/slippage.go
package dex

import "math/big"

const bpsDenominator = 10_000

// ApplySlippage computes the minimum acceptable output for an expected
// amount and a slippage tolerance in basis points. The math stays in
// integer space: amount × (10000 − bps) / 10000, rounded down, so the
// bound never exceeds what the quote promised.
func ApplySlippage(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if bps <= 0 {
		return new(big.Int).Set(amount)
	}
	if bps >= bpsDenominator {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(bpsDenominator-bps))
	return out.Div(out, big.NewInt(bpsDenominator))
}
