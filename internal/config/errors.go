package config

import "fmt"

// ConfigurationError reports an invalid or contradictory setup. It is
// always raised before any measured process is spawned.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func Errorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
