package settlement

import (
	"errors"

	"trade-settlement-go/internal/store"
)

// Caller-facing errors of CreateTrade. None of them should be retried blindly:
// an insufficient balance stays insufficient until the account is funded.
var (
	ErrInsufficientBalance = store.ErrInsufficientBalance
	ErrAccountNotFound     = store.ErrAccountNotFound
	ErrTradeNotFound       = store.ErrTradeNotFound
	ErrInvalidInput        = errors.New("invalid trade input")
)

// ErrStoreUnavailable is returned by ResolveDueTrades when the due-trade query itself fails.
// The next sweep retries naturally.
var ErrStoreUnavailable = errors.New("trade store unavailable")

// errClaimed marks a trade that another sweep completed while this one held it.
var errClaimed = errors.New("trade claimed by a concurrent sweep")
