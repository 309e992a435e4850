package store

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrentUpdate    = errors.New("account was modified concurrently")
	ErrTradeNotFound       = errors.New("trade not found")
	ErrTradeNotPending     = errors.New("trade is no longer pending")
	ErrDuplicateTrade      = errors.New("trade id already exists")
)
