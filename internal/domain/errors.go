package domain

import "errors"

var (
	ErrUndeclaredOutbound = errors.New("outbound message type not declared")
	ErrBusClosed          = errors.New("bus closed")
	ErrAlreadyRevoked     = errors.New("subscription already revoked")
	ErrInvalidPayload     = errors.New("invalid payload")
)
