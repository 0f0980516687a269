// ===============================
// File: internal/monitor/store.go
// ===============================
package monitor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrPositionExists rejects a duplicate open position for a token.
	ErrPositionExists = errors.New("open position already exists")
	// ErrPositionNotFound marks a lookup miss.
	ErrPositionNotFound = errors.New("position not found")
	// ErrPositionClosed rejects mutation of a closed position.
	ErrPositionClosed = errors.New("position already closed")
)

type storeEntry struct {
	pos Position
	// exiting is set while a sell for this position is in flight, so
	// concurrent manual and automatic exits cannot both submit.
	exiting bool
}

// PositionStore owns the position mapping. All access goes through its
// keyed accessors; no caller ever holds a live reference into the map.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[common.Address]*storeEntry
	logger    *zap.Logger
}

// NewPositionStore creates an empty store.
func NewPositionStore(logger *zap.Logger) *PositionStore {
	return &PositionStore{
		positions: make(map[common.Address]*storeEntry),
		logger:    logger.Named("store"),
	}
}

// Create adds a new position. It fails if an OPEN position already
// exists for the token; a CLOSED one is replaced (re-entry after exit).
func (s *PositionStore) Create(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.positions[pos.Token]; ok && !existing.pos.Closed() {
		return fmt.Errorf("%w for token %s", ErrPositionExists, pos.Token.Hex())
	}

	s.positions[pos.Token] = &storeEntry{pos: pos}
	s.logger.Info("Position created",
		zap.String("token", pos.Token.Hex()),
		zap.Float64("buy_price", pos.BuyPrice),
		zap.Float64("buy_amount", pos.BuyAmount))
	return nil
}

// Get returns a copy of the position for the token.
func (s *PositionStore) Get(token common.Address) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.positions[token]
	if !ok {
		return Position{}, false
	}
	return entry.pos, true
}

// Update applies fn to the stored position under the store's lock.
// It is a no-op for missing tokens and refuses to touch closed
// positions, which are immutable.
func (s *PositionStore) Update(token common.Address, fn func(*Position)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.positions[token]
	if !ok || entry.pos.Closed() {
		return
	}
	fn(&entry.pos)
}

// List returns a point-in-time copy of all positions, safe to iterate
// while others mutate the store.
func (s *PositionStore) List() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Position, 0, len(s.positions))
	for _, entry := range s.positions {
		out = append(out, entry.pos)
	}
	return out
}

// Remove deletes a position from the store entirely. Rarely used; the
// normal lifecycle ends at Close.
func (s *PositionStore) Remove(token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[token]; ok {
		delete(s.positions, token)
		s.logger.Info("Position removed", zap.String("token", token.Hex()))
	}
}

// TryBeginExit claims the exclusive right to sell a position. It
// returns false when the position is missing, already closed, or
// another exit is in flight; the losing caller must not submit a sell.
func (s *PositionStore) TryBeginExit(token common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.positions[token]
	if !ok || entry.pos.Closed() || entry.exiting {
		return false
	}
	entry.exiting = true
	return true
}

// AbortExit releases an exit claim after a failed sell so the position
// stays OPEN for the next cycle or manual intervention.
func (s *PositionStore) AbortExit(token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.positions[token]; ok && !entry.pos.Closed() {
		entry.exiting = false
	}
}

// Close transitions a position OPEN→CLOSED exactly once. It only
// succeeds against an existing open entry.
func (s *PositionStore) Close(token common.Address, exit Exit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.positions[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, token.Hex())
	}
	if entry.pos.Closed() {
		return fmt.Errorf("%w: %s", ErrPositionClosed, token.Hex())
	}

	exitCopy := exit
	entry.pos.Exit = &exitCopy
	entry.pos.CurrentPrice = exit.Price
	entry.pos.UpdatedAt = exit.Time
	entry.exiting = false

	s.logger.Info("Position closed",
		zap.String("token", token.Hex()),
		zap.String("reason", string(exit.Reason)),
		zap.Float64("exit_price", exit.Price),
		zap.Float64("bnb_received", exit.Amount))
	return nil
}

// OpenCount returns the number of open positions.
func (s *PositionStore) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.positions {
		if !entry.pos.Closed() {
			count++
		}
	}
	return count
}
