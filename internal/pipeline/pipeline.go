// Package pipeline wires the dedup gate, extraction orchestrator, taxonomy
// mapper, and store into the document ingestion flow.
package pipeline

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/dedup"
	"github.com/crestline-sec/intelpipe/internal/extract"
	"github.com/crestline-sec/intelpipe/internal/model"
	"github.com/crestline-sec/intelpipe/internal/store"
	"github.com/crestline-sec/intelpipe/internal/taxonomy"
)

// techniqueConfidence is the confidence assigned to mapped technique
// mentions; individual indicator confidence is resolved separately.
const techniqueConfidence = 70

// Pipeline is the ingestion entry point. One call to IngestDocument takes a
// raw document through dedup, extraction, scoring, taxonomy mapping, and
// persistence. Failures are isolated per document.
type Pipeline struct {
	store        store.Store
	gate         *dedup.Gate
	orchestrator *extract.Orchestrator
	mapper       *taxonomy.Mapper
	locks        *keyedMutex
}

func New(st store.Store, gate *dedup.Gate, orch *extract.Orchestrator, mapper *taxonomy.Mapper) *Pipeline {
	return &Pipeline{
		store:        st,
		gate:         gate,
		orchestrator: orch,
		mapper:       mapper,
		locks:        newKeyedMutex(),
	}
}

// IngestInput is one raw document to ingest.
type IngestInput struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SourceURL   string    `json:"source_url"`
	PublishedAt time.Time `json:"published_at"`
	// UseModel requests the model-assisted extraction pass on top of the
	// always-on pattern pass.
	UseModel bool `json:"use_model"`
}

// IngestResult reports what happened to one ingested document.
type IngestResult struct {
	Document      *model.Document          `json:"document"`
	Duplicate     bool                     `json:"duplicate"`
	CanonicalID   string                   `json:"canonical_id,omitempty"`
	Indicators    []model.Indicator        `json:"indicators,omitempty"`
	Techniques    []model.TechniqueMention `json:"techniques,omitempty"`
	Actors        []string                 `json:"actors,omitempty"`
	ModelDegraded bool                     `json:"model_degraded,omitempty"`
}

// IngestDocument runs the full ingestion flow for one document.
func (p *Pipeline) IngestDocument(ctx context.Context, in IngestInput) (*IngestResult, error) {
	doc := p.buildDocument(in)

	if strings.TrimSpace(doc.Content) == "" {
		return p.rejectUnprocessable(ctx, doc, "empty content")
	}

	// Serialize documents that could land in the same duplicate group.
	unlock := p.locks.Lock(p.groupKey(doc))
	defer unlock()

	verdict, err := p.gate.Evaluate(ctx, doc)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: dedup")
	}

	if verdict.IsDuplicate && verdict.SupersededID == "" {
		doc.Status = model.DocStatusDuplicate
		doc.CanonicalID = verdict.CanonicalID
		if err := p.store.CreateDocument(ctx, doc); err != nil {
			return nil, eris.Wrap(err, "pipeline: create duplicate document")
		}
		p.audit(ctx, doc.ID, verdict.Reason, "duplicate of "+verdict.CanonicalID)
		return &IngestResult{Document: doc, Duplicate: true, CanonicalID: verdict.CanonicalID}, nil
	}

	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, eris.Wrap(err, "pipeline: create document")
	}

	// The incoming document predates a stored near-duplicate: it takes
	// over as canonical and the stored one is redirected.
	if verdict.SupersededID != "" {
		if err := p.store.UpdateDocumentStatus(ctx, verdict.SupersededID, model.DocStatusDuplicate, doc.ID); err != nil {
			zap.L().Warn("pipeline: superseded redirect failed",
				zap.String("document_id", verdict.SupersededID), zap.Error(err))
		} else {
			p.audit(ctx, verdict.SupersededID, model.AuditNearDuplicate, "superseded by earlier document "+doc.ID)
		}
	}

	out, err := p.orchestrator.Run(ctx, doc, in.UseModel)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation: leave the document unprocessed for a later
			// retry; nothing partial was persisted.
			return nil, eris.Wrap(err, "pipeline: extraction canceled")
		}
		if uerr := p.store.UpdateDocumentStatus(ctx, doc.ID, model.DocStatusUnprocessable, ""); uerr != nil {
			zap.L().Warn("pipeline: status update failed", zap.String("document_id", doc.ID), zap.Error(uerr))
		}
		p.audit(ctx, doc.ID, model.AuditUnprocessable, err.Error())
		return nil, eris.Wrap(err, "pipeline: extraction")
	}

	result := &IngestResult{Document: doc, ModelDegraded: out.ModelDegraded, Actors: out.Actors}

	for _, ind := range out.Indicators {
		saved, err := p.store.UpsertIndicator(ctx, ind, doc.ID)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: persist indicator")
		}
		result.Indicators = append(result.Indicators, *saved)
	}

	mentions := p.mapper.Map(doc.ID, out.Techniques, techniqueConfidence)
	if err := p.store.CreateTechniqueMentions(ctx, mentions); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist techniques")
	}
	result.Techniques = mentions

	var actorMentions []model.ActorMention
	for _, name := range out.Actors {
		actorMentions = append(actorMentions, model.ActorMention{
			Name:       name,
			DocumentID: doc.ID,
			SeenAt:     doc.PublishedAt,
		})
	}
	if err := p.store.CreateActorMentions(ctx, actorMentions); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist actor mentions")
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, model.DocStatusProcessed, ""); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark processed")
	}
	doc.Status = model.DocStatusProcessed

	zap.L().Info("pipeline: document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("indicators", len(result.Indicators)),
		zap.Int("techniques", len(result.Techniques)),
		zap.Int("actors", len(result.Actors)))
	return result, nil
}

// GetIntelligence returns everything extracted from a document. Querying a
// duplicate transparently serves the canonical document's intelligence.
func (p *Pipeline) GetIntelligence(ctx context.Context, documentID string) (*model.Intelligence, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: get document")
	}
	if doc.Status == model.DocStatusDuplicate && doc.CanonicalID != "" {
		documentID = doc.CanonicalID
	}

	indicators, err := p.store.ListIndicatorsByDocument(ctx, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list indicators")
	}
	techniques, err := p.store.ListTechniquesByDocument(ctx, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list techniques")
	}
	mentions, err := p.store.ListMentionsByDocument(ctx, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list actor mentions")
	}

	return &model.Intelligence{
		DocumentID:    documentID,
		Indicators:    indicators,
		Techniques:    techniques,
		ActorMentions: mentions,
	}, nil
}

// MarkFalsePositive flags an indicator so future sightings score lower.
func (p *Pipeline) MarkFalsePositive(ctx context.Context, indicatorID string) error {
	return eris.Wrap(p.store.SetIndicatorFalsePositive(ctx, indicatorID), "pipeline: mark false positive")
}

// MarkReviewed records analyst review of an indicator.
func (p *Pipeline) MarkReviewed(ctx context.Context, indicatorID string) error {
	return eris.Wrap(p.store.SetIndicatorReviewed(ctx, indicatorID), "pipeline: mark reviewed")
}

func (p *Pipeline) buildDocument(in IngestInput) *model.Document {
	doc := &model.Document{
		Title:       in.Title,
		Content:     in.Content,
		ContentHash: model.HashContent(in.Content),
		SourceURL:   in.SourceURL,
		PublishedAt: in.PublishedAt.UTC(),
		Status:      model.DocStatusUnprocessed,
	}
	if doc.PublishedAt.IsZero() {
		doc.PublishedAt = time.Now().UTC()
	}
	if u, err := url.Parse(in.SourceURL); err == nil {
		doc.SourceHost = strings.ToLower(u.Host)
	}
	return doc
}

// groupKey picks the serialization key for a document: its host when known,
// otherwise its content hash.
func (p *Pipeline) groupKey(doc *model.Document) string {
	if doc.SourceHost != "" {
		return "host:" + strings.TrimPrefix(doc.SourceHost, "www.")
	}
	return "hash:" + doc.ContentHash
}

func (p *Pipeline) rejectUnprocessable(ctx context.Context, doc *model.Document, reason string) (*IngestResult, error) {
	doc.Status = model.DocStatusUnprocessable
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, eris.Wrap(err, "pipeline: create unprocessable document")
	}
	p.audit(ctx, doc.ID, model.AuditUnprocessable, reason)
	return &IngestResult{Document: doc}, nil
}

func (p *Pipeline) audit(ctx context.Context, docID string, reason model.AuditReason, detail string) {
	err := p.store.RecordAudit(ctx, model.AuditEvent{
		DocumentID: docID,
		Reason:     reason,
		Detail:     detail,
	})
	if err != nil {
		zap.L().Warn("pipeline: audit write failed", zap.Error(err))
	}
}
