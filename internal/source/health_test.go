package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-round-selector/internal/domain"
)

func TestHealthTracker_Transitions(t *testing.T) {
	h := NewHealthTracker("health_test", 3, nil)
	assert.Equal(t, domain.HealthHealthy, h.State())

	h.RecordFailure()
	assert.Equal(t, domain.HealthDegraded, h.State())

	h.RecordFailure()
	assert.Equal(t, domain.HealthDegraded, h.State())

	h.RecordFailure()
	assert.Equal(t, domain.HealthDown, h.State())

	h.RecordSuccess()
	assert.Equal(t, domain.HealthHealthy, h.State())

	h.RecordFailure()
	assert.Equal(t, domain.HealthDegraded, h.State(), "counter resets after success")
}

func TestHealthTracker_DefaultDownAfter(t *testing.T) {
	h := NewHealthTracker("health_default_test", 0, nil)
	for i := 0; i < DefaultDownAfter-1; i++ {
		h.RecordFailure()
	}
	assert.Equal(t, domain.HealthDegraded, h.State())
	h.RecordFailure()
	assert.Equal(t, domain.HealthDown, h.State())
}
