package domain

import "time"

// SelectionAudit is the immutable record of one selection event.
// The engine returns it; durable storage is the caller's concern.
type SelectionAudit struct {
	AuditID         string             `json:"audit_id"`
	RoundID         string             `json:"round_id"`
	SnapshotTime    time.Time          `json:"snapshot_time"`
	RawCandidates   []CandidateRef     `json:"raw_candidates"`
	Filters         FilterSet          `json:"filters"`
	ExclusionWindow int                `json:"exclusion_window"`
	Eligible        []string           `json:"eligible"`
	Scores          map[string]float64 `json:"scores"`
	Weights         map[string]float64 `json:"weights"`
	Temperature     float64            `json:"temperature"`
	ChosenMint      string             `json:"chosen_mint"`
	Seed            string             `json:"seed"`
	EngineVersion   string             `json:"engine_version"`
	Relaxations     []string           `json:"relaxations"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Relaxed reports whether any relaxation rule fired for this selection.
func (a *SelectionAudit) Relaxed() bool {
	return len(a.Relaxations) > 0
}
