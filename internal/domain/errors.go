package domain

import "errors"

var (
	ErrInvalidEnvelope   = errors.New("invalid event envelope")
	ErrUnknownAction     = errors.New("unknown event action")
	ErrUnknownVisibility = errors.New("unknown event visibility")
)
