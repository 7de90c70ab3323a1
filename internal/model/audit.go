package model

import "time"

// AuditReason categorizes why a piece of intelligence was rejected or a
// degradation occurred. Every rejection is recorded — nothing vanishes
// silently.
type AuditReason string

const (
	AuditHashDuplicate      AuditReason = "hash_duplicate"
	AuditNearDuplicate      AuditReason = "near_duplicate"
	AuditVerbatimFailed     AuditReason = "verbatim_failed"
	AuditSourceDomain       AuditReason = "source_domain_excluded"
	AuditFalsePositive      AuditReason = "false_positive_penalty"
	AuditSimilarityDegraded AuditReason = "similarity_degraded"
	AuditUnprocessable      AuditReason = "unprocessable"
	AuditEnrichFailed       AuditReason = "enrich_failed"
)

// AuditEvent records a rejection or degradation with enough detail for
// later review.
type AuditEvent struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id,omitempty"`
	Reason     AuditReason `json:"reason"`
	Detail     string      `json:"detail,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Intelligence bundles everything the pipeline extracted from a single
// document.
type Intelligence struct {
	DocumentID    string             `json:"document_id"`
	Indicators    []Indicator        `json:"indicators"`
	Techniques    []TechniqueMention `json:"techniques"`
	ActorMentions []ActorMention     `json:"actor_mentions"`
}
