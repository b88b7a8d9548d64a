package config

import "errors"

// ErrInvalidConfig wraps every configuration validation failure so callers
// can distinguish user error from engine failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")
