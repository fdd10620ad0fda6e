package signal

import "errors"

var (
	// ErrInvalidPhrases is returned when a phrase file cannot be used.
	ErrInvalidPhrases = errors.New("signal: invalid phrase levels")

	// ErrEmptyText is returned when empty feed text is submitted.
	ErrEmptyText = errors.New("signal: empty text")
)
