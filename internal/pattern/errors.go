package pattern

import "errors"

// Domain errors for the pattern package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, pattern.ErrEmptySteps) {
//	    // reject the request
//	}
var (
	// ErrEmptySteps is returned when a pattern has no steps.
	ErrEmptySteps = errors.New("pattern: steps must not be empty")

	// ErrTooManySteps is returned when a pattern exceeds the step limit.
	ErrTooManySteps = errors.New("pattern: too many steps")

	// ErrNegativeDuration is returned when a step duration is negative.
	ErrNegativeDuration = errors.New("pattern: negative step duration")

	// ErrNegativeInterval is returned when the cycle interval is negative.
	ErrNegativeInterval = errors.New("pattern: negative interval")

	// ErrNegativeRepeat is returned when the repeat count is negative.
	ErrNegativeRepeat = errors.New("pattern: negative repeat count")
)
