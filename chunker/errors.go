package chunker

import "errors"

var (
	// ErrInvalidMaxChars is returned when the maximum chunk length is less than one rune.
	ErrInvalidMaxChars = errors.New("max chars must be at least 1")
)
