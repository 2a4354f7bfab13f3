package service

// Outcome labels shared by AuthMetrics implementations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
	OutcomeReplay  = "replay"
	OutcomeExpired = "expired"
	OutcomeSkipped = "skipped"
)

// AuthMetrics records authentication events.
type AuthMetrics interface {
	LoginAttempt(outcome string)
	RefreshAttempt(outcome string)
	ResetRequested(outcome string)
	AccountLocked()
}

// NoopAuthMetrics discards every event.
type NoopAuthMetrics struct{}

func (NoopAuthMetrics) LoginAttempt(string)   {}
func (NoopAuthMetrics) RefreshAttempt(string) {}
func (NoopAuthMetrics) ResetRequested(string) {}
func (NoopAuthMetrics) AccountLocked()        {}
