package store

import (
	"context"
	"time"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// DocumentFilter narrows candidate lookups for the deduplication gate.
type DocumentFilter struct {
	SourceHost     string    `json:"source_host,omitempty"`
	PublishedAfter time.Time `json:"published_after,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the intelligence pipeline.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetDocumentByHash(ctx context.Context, contentHash string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status model.DocStatus, canonicalID string) error

	// Indicators. UpsertIndicator enforces (type, value) uniqueness: an
	// existing row gets its occurrence count bumped and last-seen refreshed,
	// and the new document is recorded as an occurrence.
	UpsertIndicator(ctx context.Context, ind model.Indicator, documentID string) (*model.Indicator, error)
	GetIndicator(ctx context.Context, id string) (*model.Indicator, error)
	GetIndicatorByValue(ctx context.Context, typ model.IndicatorType, value string) (*model.Indicator, error)
	ListIndicatorsByDocument(ctx context.Context, documentID string) ([]model.Indicator, error)
	ListOccurrences(ctx context.Context, from, to time.Time) ([]model.IndicatorOccurrence, error)
	SetIndicatorReviewed(ctx context.Context, id string) error
	SetIndicatorFalsePositive(ctx context.Context, id string) error
	IsKnownFalsePositive(ctx context.Context, typ model.IndicatorType, value string) (bool, error)

	// Techniques
	CreateTechniqueMentions(ctx context.Context, mentions []model.TechniqueMention) error
	ListTechniquesByDocument(ctx context.Context, documentID string) ([]model.TechniqueMention, error)

	// Actor mentions
	CreateActorMentions(ctx context.Context, mentions []model.ActorMention) error
	ListUnresolvedMentions(ctx context.Context, limit int) ([]model.ActorMention, error)
	AssignMentionProfile(ctx context.Context, mentionID, profileID string) error
	ListMentionsByDocument(ctx context.Context, documentID string) ([]model.ActorMention, error)

	// Threat actor profiles
	SaveProfile(ctx context.Context, p *model.ThreatActorProfile) error
	GetProfile(ctx context.Context, id string) (*model.ThreatActorProfile, error)
	ListProfiles(ctx context.Context) ([]model.ThreatActorProfile, error)

	// Audit trail
	RecordAudit(ctx context.Context, event model.AuditEvent) error
	ListAuditEvents(ctx context.Context, documentID string, limit int) ([]model.AuditEvent, error)

	// Correlation cache (regenerable, safe to discard)
	GetCachedReport(ctx context.Context, key string) (*model.CorrelationReport, error)
	SetCachedReport(ctx context.Context, key string, report *model.CorrelationReport, ttl time.Duration) error
	DeleteExpiredReports(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
