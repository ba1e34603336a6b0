package morton

import "github.com/pkg/errors"

var (
	// ErrOutOfRange is returned when a coordinate component does not fit in the configured bit width.
	ErrOutOfRange = errors.New("coordinate out of range")

	// ErrDimensionMismatch is returned when a coordinate has the wrong number of components.
	ErrDimensionMismatch = errors.New("coordinate dimension mismatch")

	// ErrInvalidConfiguration is returned for unusable dimension, bit width, fan-out or metric settings.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
