package resolver

import "time"

// MetricsCollector provides hooks for collecting commit metrics.
type MetricsCollector interface {
	// RecordDuration records how long a commit or rebase took
	RecordDuration(operation string, duration time.Duration)

	// RecordOutcome records "success", "conflict" or "error" per operation
	RecordOutcome(operation string, outcome string)

	// RecordRetries records store races lost before the operation finished
	RecordRetries(operation string, retries int)

	// RecordConflictCells records the size of a reported conflict set
	RecordConflictCells(cells int)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordOutcome(operation string, outcome string)          {}
func (n *NoOpMetricsCollector) RecordRetries(operation string, retries int)             {}
func (n *NoOpMetricsCollector) RecordConflictCells(cells int)                           {}
