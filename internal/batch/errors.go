package batch

import "errors"

// ErrRunInProgress is returned when a run is requested while another run
// holds the single-flight guard. Callers treat it as a no-op, not a failure.
var ErrRunInProgress = errors.New("a batch run is already in progress")

// ConfigError marks a precondition failure that aborts a run before any
// worker starts (empty roster, missing storage root).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "batch configuration: " + e.Reason
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
