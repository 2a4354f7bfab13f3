package impl

import (
	"ideaboard/internal/domain/service"
)

func clockOrSystem(clock service.Clock) service.Clock {
	if clock == nil {
		return service.SystemClock()
	}

	return clock
}

func metricsOrNoop(metrics service.AuthMetrics) service.AuthMetrics {
	if metrics == nil {
		return service.NoopAuthMetrics{}
	}

	return metrics
}
