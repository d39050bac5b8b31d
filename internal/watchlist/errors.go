package watchlist

import "errors"

var (
	ErrNotFound          = errors.New("event not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidPrice      = errors.New("invalid max price")
	ErrInvalidCandidate  = errors.New("candidate requires title and url")
)
