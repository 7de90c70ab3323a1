package model

import "time"

// IndicatorType classifies an atomic observable.
type IndicatorType string

const (
	IndicatorIP          IndicatorType = "ip"
	IndicatorIPv6        IndicatorType = "ipv6"
	IndicatorDomain      IndicatorType = "domain"
	IndicatorURL         IndicatorType = "url"
	IndicatorHash        IndicatorType = "hash"
	IndicatorEmail       IndicatorType = "email"
	IndicatorCVE         IndicatorType = "cve"
	IndicatorRegistryKey IndicatorType = "registry_key"
	IndicatorFilePath    IndicatorType = "file_path"
	IndicatorGeneric     IndicatorType = "generic"
)

// Provenance records which extractor path produced a candidate. Behavior
// differs only in confidence scoring, not interface.
type Provenance string

const (
	ProvenancePattern Provenance = "pattern"
	ProvenanceModel   Provenance = "model"
	ProvenanceMerged  Provenance = "merged"
)

// Indicator is a confidence-scored observable. Unique per (Type, Value);
// re-occurrence bumps OccurrenceCount and LastSeen instead of inserting a
// second row.
type Indicator struct {
	ID              string        `json:"id"`
	Type            IndicatorType `json:"type"`
	Value           string        `json:"value"`
	Confidence      int           `json:"confidence"` // 0-100
	Evidence        string        `json:"evidence"`
	Provenance      Provenance    `json:"provenance"`
	FirstSeen       time.Time     `json:"first_seen"`
	LastSeen        time.Time     `json:"last_seen"`
	OccurrenceCount int           `json:"occurrence_count"`
	Reviewed        bool          `json:"reviewed"`
	FalsePositive   bool          `json:"false_positive"`
}

// Candidate is an extractor output before scoring and persistence.
type Candidate struct {
	Type       IndicatorType `json:"type"`
	Value      string        `json:"value"`
	Provenance Provenance    `json:"provenance"`
	Evidence   string        `json:"evidence,omitempty"`
}

// Key returns the uniqueness key for an indicator candidate.
func (c Candidate) Key() string {
	return string(c.Type) + ":" + c.Value
}

// ClampConfidence bounds a raw score to the valid [0,100] range.
func ClampConfidence(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
