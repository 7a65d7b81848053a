package config

import (
	"errors"
	"fmt"

	"github.com/poiesic/threadbase/core"
)

var (
	// ErrInvalidConfig indicates a configuration value outside its allowed range.
	ErrInvalidConfig = fmt.Errorf("%w: invalid configuration", core.ErrValidation)

	// ErrUnsupportedFormat indicates a config file extension other than .yaml, .yml or .toml.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
