package civicrag

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("civicrag: invalid configuration")

	// ErrUnsupportedBackend is returned when STORAGE names something
	// other than the supported set.
	ErrUnsupportedBackend = errors.New("civicrag: unsupported backend")

	// ErrNotConfigured is returned when a component is requested but
	// its endpoint or credentials are missing from the configuration.
	ErrNotConfigured = errors.New("civicrag: component not configured")
)
