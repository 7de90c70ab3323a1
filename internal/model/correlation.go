package model

import "time"

// SharedIndicatorLink connects the documents that reference the same
// (type, value) indicator inside a correlation window. Derived state —
// regenerable, never authoritative.
type SharedIndicatorLink struct {
	Type        IndicatorType `json:"type"`
	Value       string        `json:"value"`
	DocumentIDs []string      `json:"document_ids"`
}

// CorrelationCluster is a connected component of documents linked by shared
// indicators whose pairwise count met the cluster threshold. Advisory only.
type CorrelationCluster struct {
	ID          string   `json:"id"`
	DocumentIDs []string `json:"document_ids"`
	// EdgeCount is the number of qualifying document pairs in the cluster.
	EdgeCount int `json:"edge_count"`
}

// CorrelationReport is the result of one request-scoped correlation run.
type CorrelationReport struct {
	WindowStart      time.Time             `json:"window_start"`
	WindowEnd        time.Time             `json:"window_end"`
	SharedIndicators []SharedIndicatorLink `json:"shared_indicators"`
	Clusters         []CorrelationCluster  `json:"clusters"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// IndicatorOccurrence ties a persisted indicator to one referencing
// document, the raw material for shared-indicator detection.
type IndicatorOccurrence struct {
	IndicatorID string        `json:"indicator_id"`
	Type        IndicatorType `json:"type"`
	Value       string        `json:"value"`
	DocumentID  string        `json:"document_id"`
	SeenAt      time.Time     `json:"seen_at"`
}
