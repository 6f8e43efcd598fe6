//go:build linux

package counters

import (
	"alloc-bench/internal/logging"

	"github.com/elastic/go-perf"
	"github.com/sirupsen/logrus"
)

// Check is the outcome of probing one event.
type Check struct {
	Event string
	// Known is false for raw or PMU events, which are left to the sampling tool.
	Known     bool
	Supported bool
	Err       error
}

// Preflight opens each known event on the calling thread and closes it
// again. It tells a user before a long run whether counters are usable
// under the current perf_event_paranoid setting.
func Preflight(events []string) []Check {
	logger := logging.GetLogger()

	checks := make([]Check, 0, len(events))
	for _, event := range events {
		check := Check{Event: event}
		configure, ok := lookup(event)
		if !ok {
			logger.WithField("event", event).Debug("Event not probed, leaving it to the sampling tool")
			checks = append(checks, check)
			continue
		}
		check.Known = true

		attr := &perf.Attr{}
		configure(attr)
		attr.Options.Disabled = true
		attr.Options.ExcludeKernel = true
		attr.Options.ExcludeHypervisor = true

		ev, err := perf.Open(attr, perf.CallingThread, perf.AnyCPU, nil)
		if err != nil {
			check.Err = err
			logger.WithFields(logrus.Fields{
				"event": event,
			}).WithError(err).Warn("Counter not available")
			checks = append(checks, check)
			continue
		}
		ev.Close()

		check.Supported = true
		checks = append(checks, check)
	}
	return checks
}
