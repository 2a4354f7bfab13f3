// Package metrics exposes authentication counters to Prometheus.
package metrics

import (
	"ideaboard/internal/domain/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// AuthMetrics implements service.AuthMetrics with Prometheus counters.
type AuthMetrics struct {
	LoginAttempts   *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	ResetRequests   *prometheus.CounterVec
	Lockouts        prometheus.Counter
}

var _ service.AuthMetrics = (*AuthMetrics)(nil)

// NewRegistry creates a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// NewAuthMetrics creates and registers the authentication counters.
func NewAuthMetrics(reg *prometheus.Registry) *AuthMetrics {
	m := &AuthMetrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_attempts_total",
				Help: "Password login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RefreshAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_refresh_attempts_total",
				Help: "Refresh token rotations by outcome",
			},
			[]string{"outcome"},
		),
		ResetRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_password_reset_requests_total",
				Help: "Password reset requests by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Accounts that crossed the failed login threshold",
		}),
	}

	reg.MustRegister(m.LoginAttempts, m.RefreshAttempts, m.ResetRequests, m.Lockouts)

	return m
}

// AsService exposes m through the domain interface for injection.
func AsService(m *AuthMetrics) service.AuthMetrics {
	return m
}

func (m *AuthMetrics) LoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) RefreshAttempt(outcome string) {
	m.RefreshAttempts.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ResetRequested(outcome string) {
	m.ResetRequests.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) AccountLocked() {
	m.Lockouts.Inc()
}
