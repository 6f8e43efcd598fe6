//go:build !linux

package counters

import "errors"

type Check struct {
	Event     string
	Known     bool
	Supported bool
	Err       error
}

var errUnsupported = errors.New("hardware counters are only probed on linux")

func Known(event string) bool {
	return false
}

func Preflight(events []string) []Check {
	checks := make([]Check, 0, len(events))
	for _, event := range events {
		checks = append(checks, Check{Event: event, Err: errUnsupported})
	}
	return checks
}
