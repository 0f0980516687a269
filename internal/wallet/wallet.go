// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrConfirmationTimeout is returned when a submitted transaction is not
// mined before the caller's context expires.
var ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")

const receiptPollInterval = 2 * time.Second

// Backend is the subset of the chain client the wallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// TxRequest describes a transaction to sign and broadcast.
type TxRequest struct {
	To       common.Address
	Value    *big.Int // nil for plain contract calls
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Wallet signs and submits transactions for a single key. Submissions
// are serialized so concurrent callers cannot collide on a nonce.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend Backend
	logger  *zap.Logger

	mu      sync.Mutex // guards nonce fetch + send as one unit
	chainID *big.Int
}

// New creates a wallet from a hex-encoded private key.
func New(privateKeyHex string, backend Backend, logger *zap.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
		logger:  logger.Named("wallet"),
	}, nil
}

// Address returns the wallet's account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Balance returns the wallet's native BNB balance.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.backend.BalanceAt(ctx, w.address)
}

// SignAndSend signs the request and broadcasts it, retrying transient RPC
// failures with exponential backoff. Exactly one submission is in flight
// per wallet at any time.
func (w *Wallet) SignAndSend(ctx context.Context, req *TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chainID, err := w.getChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	operation := func() error {
		sendErr := w.backend.SendTransaction(ctx, signed)
		if sendErr != nil {
			// A retried broadcast of the same signed payload can race its
			// own earlier attempt; the node reports that as already known.
			if strings.Contains(sendErr.Error(), "already known") {
				return nil
			}
			w.logger.Warn("Retrying transaction send", zap.Error(sendErr))
			return sendErr
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger.Info("Transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce))

	return signed.Hash(), nil
}

// WaitForConfirmation polls for the receipt of a submitted transaction
// until it is mined or the context expires. The returned receipt carries
// the definitive success/revert status; callers must inspect it.
func (w *Wallet) WaitForConfirmation(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			w.logger.Warn("Receipt lookup failed",
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, txHash.Hex())
		case <-ticker.C:
		}
	}
}

func (w *Wallet) getChainID(ctx context.Context) (*big.Int, error) {
	if w.chainID != nil {
		return w.chainID, nil
	}
	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	w.chainID = chainID
	return chainID, nil
}

// String returns the wallet's address for logging.
func (w *Wallet) String() string {
	return w.address.Hex()
}
