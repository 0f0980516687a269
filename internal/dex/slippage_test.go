// ====================================
// File: internal/dex/slippage_test.go
// ====================================
package dex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		bps      int64
		expected *big.Int
	}{
		{"ten percent", big.NewInt(1000), 1000, big.NewInt(900)},
		{"half percent", big.NewInt(10000), 50, big.NewInt(9950)},
		{"zero tolerance keeps amount", big.NewInt(1234), 0, big.NewInt(1234)},
		{"negative treated as zero", big.NewInt(1234), -5, big.NewInt(1234)},
		{"full tolerance floors at zero", big.NewInt(1234), 10000, big.NewInt(0)},
		{"above full tolerance floors at zero", big.NewInt(1234), 12000, big.NewInt(0)},
		{"rounds down", big.NewInt(999), 1000, big.NewInt(899)},
		{"nil amount", nil, 1000, big.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplySlippage(tt.amount, tt.bps)
			assert.Equal(t, 0, tt.expected.Cmp(got),
				"expected %s, got %s", tt.expected.String(), got.String())
		})
	}
}

func TestApplySlippageDoesNotMutateInput(t *testing.T) {
	amount := big.NewInt(1000)
	ApplySlippage(amount, 1000)
	assert.Equal(t, int64(1000), amount.Int64())
}

func TestApplySlippageLargeAmount(t *testing.T) {
	// 5_000_000 tokens with 18 decimals, 3% tolerance.
	amount, _ := new(big.Int).SetString("5000000000000000000000000", 10)
	expected, _ := new(big.Int).SetString("4850000000000000000000000", 10)

	got := ApplySlippage(amount, 300)
	assert.Equal(t, 0, expected.Cmp(got))
}
