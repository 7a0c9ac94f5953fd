package pool

import "errors"

var (
	ErrAlreadyInitialized  = errors.New("pool: already initialized")
	ErrNotInitialized      = errors.New("pool: not initialized")
	ErrInvalidRange        = errors.New("pool: invalid tick range")
	ErrZeroAmount          = errors.New("pool: zero amount")
	ErrInvalidPriceLimit   = errors.New("pool: price limit on wrong side of current price")
	ErrInsufficientPayment = errors.New("pool: settlement under-delivered mint payment")
	ErrInsufficientInput   = errors.New("pool: settlement under-delivered swap input")
)
