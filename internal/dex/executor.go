// ===============================
// File: internal/dex/executor.go
// ===============================
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/wallet"
)

// DefaultDeadlineWindow bounds how long an in-flight swap may wait
// before the router rejects it as stale.
const DefaultDeadlineWindow = 20 * time.Minute

// ErrSwapReverted marks an on-chain execution failure, typically the
// slippage bound being exceeded at confirmation time.
var ErrSwapReverted = errors.New("swap reverted on-chain")

var (
	transferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	withdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// Signer submits signed transactions and waits for their receipts.
// Satisfied by wallet.Wallet; tests supply fakes.
type Signer interface {
	Address() common.Address
	SignAndSend(ctx context.Context, req *wallet.TxRequest) (common.Hash, error)
	WaitForConfirmation(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ExecutorConfig carries the swap parameters fixed at startup.
type ExecutorConfig struct {
	SlippageBps    int64
	GasPrice       *big.Int
	GasLimit       uint64
	DeadlineWindow time.Duration // zero means DefaultDeadlineWindow
}

// SwapExecutor turns a desired trade into a slippage-bounded swap,
// submits it and blocks until settlement.
type SwapExecutor struct {
	router *Router
	signer Signer
	tokens TokenReader
	config ExecutorConfig
	logger *zap.Logger
}

// NewSwapExecutor creates a swap executor.
func NewSwapExecutor(router *Router, signer Signer, tokens TokenReader, config ExecutorConfig, logger *zap.Logger) *SwapExecutor {
	if config.DeadlineWindow == 0 {
		config.DeadlineWindow = DefaultDeadlineWindow
	}
	return &SwapExecutor{
		router: router,
		signer: signer,
		tokens: tokens,
		config: config,
		logger: logger.Named("executor"),
	}
}

// Buy swaps an exact BNB amount (wei) for tokens. On success the result
// carries the realized token amount from the receipt's Transfer log.
func (e *SwapExecutor) Buy(ctx context.Context, token common.Address, bnbAmount *big.Int) TradeResult {
	if bnbAmount == nil || bnbAmount.Sign() <= 0 {
		return failedResult(errors.New("buy amount must be positive"))
	}

	path := []common.Address{e.router.WBNB(), token}

	amounts, err := e.router.GetAmountsOut(ctx, bnbAmount, path)
	if err != nil {
		return failedResult(fmt.Errorf("failed to quote buy: %w", err))
	}
	expected := amounts[len(amounts)-1]
	minOut := ApplySlippage(expected, e.config.SlippageBps)

	data, err := e.router.SwapExactBNBForTokensData(minOut, path, e.signer.Address(), e.deadline())
	if err != nil {
		return failedResult(err)
	}

	e.logger.Info("Submitting buy",
		zap.String("token", token.Hex()),
		zap.String("bnb_in", bnbAmount.String()),
		zap.String("min_out", minOut.String()))

	receipt, txHash, err := e.submitAndConfirm(ctx, &wallet.TxRequest{
		To:       e.router.Address(),
		Value:    bnbAmount,
		Data:     data,
		GasLimit: e.config.GasLimit,
		GasPrice: e.config.GasPrice,
	})
	if err != nil {
		return failedResult(err)
	}

	realized := realizedTokenAmount(receipt, token, e.signer.Address())
	if realized == nil {
		e.logger.Warn("No Transfer log found in buy receipt, using quoted estimate",
			zap.String("tx_hash", txHash.Hex()))
		realized = expected
	}

	e.logger.Info("✅ Buy confirmed",
		zap.String("token", token.Hex()),
		zap.String("tx_hash", txHash.Hex()),
		zap.String("tokens_out", realized.String()))

	return TradeResult{Success: true, TxHash: txHash.Hex(), Amount: realized}
}

// Sell swaps an exact token amount (raw units) for BNB. The requested
// amount is reconciled against the live on-chain balance first so the
// bot never tries to sell more than it actually holds.
func (e *SwapExecutor) Sell(ctx context.Context, token common.Address, tokenAmount *big.Int) TradeResult {
	amount := tokenAmount
	if balance, err := e.tokens.TokenBalance(ctx, token, e.signer.Address()); err == nil {
		if amount == nil || amount.Sign() == 0 || (balance.Sign() > 0 && amount.Cmp(balance) > 0) {
			amount = balance
		}
	} else {
		e.logger.Warn("Failed to read live token balance before sell",
			zap.String("token", token.Hex()),
			zap.Error(err))
	}
	if amount == nil || amount.Sign() == 0 {
		return failedResult(errors.New("no token balance to sell"))
	}

	// TODO: approve the router's allowance on first sell of a token
	// instead of assuming an existing approval.
	path := []common.Address{token, e.router.WBNB()}

	amounts, err := e.router.GetAmountsOut(ctx, amount, path)
	if err != nil {
		return failedResult(fmt.Errorf("failed to quote sell: %w", err))
	}
	expected := amounts[len(amounts)-1]
	minOut := ApplySlippage(expected, e.config.SlippageBps)

	data, err := e.router.SwapExactTokensForBNBData(amount, minOut, path, e.signer.Address(), e.deadline())
	if err != nil {
		return failedResult(err)
	}

	e.logger.Info("Submitting sell",
		zap.String("token", token.Hex()),
		zap.String("tokens_in", amount.String()),
		zap.String("min_out", minOut.String()))

	receipt, txHash, err := e.submitAndConfirm(ctx, &wallet.TxRequest{
		To:       e.router.Address(),
		Data:     data,
		GasLimit: e.config.GasLimit,
		GasPrice: e.config.GasPrice,
	})
	if err != nil {
		return failedResult(err)
	}

	realized := realizedBNBAmount(receipt, e.router.WBNB())
	if realized == nil {
		e.logger.Warn("No Withdrawal log found in sell receipt, using quoted estimate",
			zap.String("tx_hash", txHash.Hex()))
		realized = expected
	}

	e.logger.Info("✅ Sell confirmed",
		zap.String("token", token.Hex()),
		zap.String("tx_hash", txHash.Hex()),
		zap.String("bnb_out", realized.String()))

	return TradeResult{Success: true, TxHash: txHash.Hex(), Amount: realized}
}

// submitAndConfirm signs, broadcasts and waits for the receipt. The
// confirmation wait is bounded by the same window as the on-chain
// deadline, so a stalled chain resolves as a timeout instead of a hang.
func (e *SwapExecutor) submitAndConfirm(ctx context.Context, req *wallet.TxRequest) (*types.Receipt, common.Hash, error) {
	txHash, err := e.signer.SignAndSend(ctx, req)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("submission failed: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.config.DeadlineWindow)
	defer cancel()

	receipt, err := e.signer.WaitForConfirmation(confirmCtx, txHash)
	if err != nil {
		return nil, txHash, fmt.Errorf("confirmation failed for %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, txHash, fmt.Errorf("%w: %s", ErrSwapReverted, txHash.Hex())
	}
	return receipt, txHash, nil
}

func (e *SwapExecutor) deadline() *big.Int {
	return big.NewInt(time.Now().Add(e.config.DeadlineWindow).Unix())
}

// realizedTokenAmount extracts the token amount actually delivered to
// the recipient from the receipt's BEP-20 Transfer logs.
func realizedTokenAmount(receipt *types.Receipt, token, recipient common.Address) *big.Int {
	var realized *big.Int
	for _, log := range receipt.Logs {
		if log.Address != token || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}
		realized = new(big.Int).SetBytes(log.Data)
	}
	return realized
}

// realizedBNBAmount extracts the BNB amount unwrapped for the seller
// from the WBNB Withdrawal log.
func realizedBNBAmount(receipt *types.Receipt, wbnb common.Address) *big.Int {
	var realized *big.Int
	for _, log := range receipt.Logs {
		if log.Address != wbnb || len(log.Topics) < 1 || log.Topics[0] != withdrawalTopic {
			continue
		}
		realized = new(big.Int).SetBytes(log.Data)
	}
	return realized
}
