package core

const tracerName = "github.com/acme-app/authcontext/core"

// Metric names emitted by the Service.
const (
	MetricCredentialChecks       = "authcontext_credential_checks_total"
	MetricCredentialCheckSeconds = "authcontext_credential_check_seconds"
	MetricFailureLookups         = "authcontext_failure_lookups_total"
	MetricCsrfChecks             = "authcontext_csrf_checks_total"
)

// Metrics is a generic metrics interface for the Service.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
	ObserveHistogram(name string, value float64, tags map[string]string)
}

// NoopMetrics is a default metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(name string, tags map[string]string)                      {}
func (NoopMetrics) ObserveHistogram(name string, value float64, tags map[string]string) {}
