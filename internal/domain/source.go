package domain

// SourceHealth represents the health of a data source adapter.
type SourceHealth string

const (
	HealthHealthy  SourceHealth = "healthy"
	HealthDegraded SourceHealth = "degraded"
	HealthDown     SourceHealth = "down"
)

// String returns the string representation of SourceHealth.
func (h SourceHealth) String() string {
	return string(h)
}

// IsValid checks if the health is a valid value.
func (h SourceHealth) IsValid() bool {
	return h == HealthHealthy || h == HealthDegraded || h == HealthDown
}

// Gauge maps health to a numeric value for metrics (healthy=2, degraded=1, down=0).
func (h SourceHealth) Gauge() float64 {
	switch h {
	case HealthHealthy:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}
