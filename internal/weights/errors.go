package weights

import "errors"

// Common errors.
var (
	ErrNotFound          = errors.New("pretrained weights not found")
	ErrUnsupportedFormat = errors.New("unsupported weight format")
	ErrNoFetcher         = errors.New("no fetcher configured for remote weights")
	ErrLayout            = errors.New("invalid tensor layout")
)
