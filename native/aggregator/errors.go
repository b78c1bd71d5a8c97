package aggregator

import "errors"

var (
	ErrNotAuthorized       = errors.New("aggregator: caller not authorized")
	ErrInvalidProtocol     = errors.New("aggregator: invalid protocol")
	ErrInvalidProtocolType = errors.New("aggregator: invalid protocol type")
	ErrInvalidToken        = errors.New("aggregator: token transfer capability not configured")
	ErrInsufficientBalance = errors.New("aggregator: insufficient position balance")
	ErrInvalidAmount       = errors.New("aggregator: invalid amount")
	ErrProtocolNotActive   = errors.New("aggregator: protocol not active")
	ErrSlippageTooHigh     = errors.New("aggregator: selected apy below quoted tolerance")
	ErrMaxProtocolsReached = errors.New("aggregator: maximum protocols reached")
	ErrNoActiveProtocols   = errors.New("aggregator: no active protocols")
	ErrTransferFailed      = errors.New("aggregator: token transfer failed")
	ErrAlreadyInitialized  = errors.New("aggregator: already initialised")
	ErrNotInitialized      = errors.New("aggregator: not initialised")
	ErrInvalidParams       = errors.New("aggregator: invalid parameters")

	errNilState = errors.New("aggregator: state not configured")
)
