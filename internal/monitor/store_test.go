// ====================================
// File: internal/monitor/store_test.go
// ====================================
package monitor

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testToken(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	pos := Position{Token: token, BuyPrice: 1.5, TokenAmount: big.NewInt(100), BuyTime: time.Now()}
	require.NoError(t, store.Create(pos))

	got, ok := store.Get(token)
	require.True(t, ok)
	assert.Equal(t, 1.5, got.BuyPrice)
	assert.False(t, got.Closed())
	assert.Equal(t, 1, store.OpenCount())
}

func TestStoreRejectsDuplicateOpenPosition(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))
	err := store.Create(Position{Token: token, BuyPrice: 2})
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestStoreReplacesClosedPositionOnReentry(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))
	require.NoError(t, store.Close(token, Exit{Reason: ExitManual, Time: time.Now()}))

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 2}))
	got, _ := store.Get(token)
	assert.Equal(t, 2.0, got.BuyPrice)
	assert.False(t, got.Closed())
}

func TestStoreUpdateSkipsClosed(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))
	require.NoError(t, store.Close(token, Exit{Price: 2, Reason: ExitTakeProfit, Time: time.Now()}))

	store.Update(token, func(p *Position) { p.CurrentPrice = 99 })

	got, _ := store.Get(token)
	assert.Equal(t, 2.0, got.CurrentPrice, "closed positions are immutable")
}

func TestStoreCloseTwiceFails(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))
	require.NoError(t, store.Close(token, Exit{Reason: ExitManual, Time: time.Now()}))

	err := store.Close(token, Exit{Reason: ExitStopLoss, Time: time.Now()})
	assert.ErrorIs(t, err, ErrPositionClosed)
}

func TestStoreCloseMissingFails(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	err := store.Close(testToken(0), Exit{Reason: ExitManual})
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestStoreListIsSnapshot(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Create(Position{Token: testToken(i), BuyPrice: float64(i + 1)}))
	}

	list := store.List()
	require.Len(t, list, 5)

	// Mutating the snapshot must not touch the store.
	list[0].BuyPrice = 999
	got, _ := store.Get(list[0].Token)
	assert.NotEqual(t, 999.0, got.BuyPrice)
}

func TestStoreExitClaimIsExclusive(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)
	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.TryBeginExit(token) {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins, "exactly one caller may claim the exit")
}

func TestStoreAbortExitReleasesClaim(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)
	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))

	require.True(t, store.TryBeginExit(token))
	require.False(t, store.TryBeginExit(token))

	store.AbortExit(token)
	assert.True(t, store.TryBeginExit(token), "an aborted exit frees the claim")
}

func TestStoreClaimOnClosedOrMissingFails(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	token := testToken(0)

	assert.False(t, store.TryBeginExit(token), "missing position")

	require.NoError(t, store.Create(Position{Token: token, BuyPrice: 1}))
	require.NoError(t, store.Close(token, Exit{Reason: ExitManual, Time: time.Now()}))
	assert.False(t, store.TryBeginExit(token), "closed position")
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewPositionStore(zap.NewNop())
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Create(Position{Token: testToken(i), BuyPrice: 1}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Update(testToken(i), func(p *Position) {
					p.CurrentPrice = float64(j)
				})
				store.Get(testToken(i))
				store.List()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, store.OpenCount())
}
