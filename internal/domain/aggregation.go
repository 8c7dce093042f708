package domain

import "time"

// SourceReport describes one adapter's contribution to an aggregation.
type SourceReport struct {
	Name     string
	Count    int
	Health   SourceHealth
	Duration time.Duration
}

// AggregationResult is the deduplicated candidate pool of one round.
// Produced fresh each round and not persisted.
type AggregationResult struct {
	Candidates   []*TokenCandidate // unique by mint
	SourcesUsed  []string          // adapters that contributed at least one candidate
	SnapshotTime time.Time
	Reports      []SourceReport
}

// Empty reports whether no selection is possible from this result.
func (r *AggregationResult) Empty() bool {
	return r == nil || len(r.Candidates) == 0
}
