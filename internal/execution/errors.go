package execution

import "errors"

var (
	// ErrNilConfig is returned when the configuration is nil.
	ErrNilConfig = errors.New("execution mode config is nil")

	// ErrNilIterationFunc is returned when the iteration function is nil.
	ErrNilIterationFunc = errors.New("iteration function is nil")

	// ErrInvalidVUs is returned when the VU count is not positive.
	ErrInvalidVUs = errors.New("invalid vus: must be at least 1")

	// ErrInvalidDuration is returned when the duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")

	// ErrInvalidRate is returned when the rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must not be negative")

	// ErrModeAlreadyRunning is returned when trying to start a mode that is already running.
	ErrModeAlreadyRunning = errors.New("execution mode is already running")

	// ErrPoolExhausted is returned when no VU can be acquired from the pool.
	ErrPoolExhausted = errors.New("vu pool exhausted")
)
