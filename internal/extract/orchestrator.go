package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// Lookup is the slice of the store the orchestrator needs for scoring and
// auditing.
type Lookup interface {
	IsKnownFalsePositive(ctx context.Context, typ model.IndicatorType, value string) (bool, error)
	RecordAudit(ctx context.Context, event model.AuditEvent) error
}

// modelRunner lets tests stub the model path.
type modelRunner interface {
	Extract(ctx context.Context, doc *model.Document) (*Result, error)
}

// Output is the orchestrator's merged, verified, and scored product for one
// document.
type Output struct {
	Indicators []model.Indicator
	Techniques []TechniqueRef
	Actors     []string
	// ModelDegraded is true when the model path was requested but failed
	// and the output is pattern-only.
	ModelDegraded bool
}

// Orchestrator runs the pattern extractor always and the model extractor on
// demand, then merges the two result sets. Model output is untrusted: any
// value not literally present in the document is rejected and audited, as
// is any indicator pointing back at the document's own source domain.
type Orchestrator struct {
	pattern  *PatternExtractor
	model    modelRunner
	resolver *Resolver
	lookup   Lookup
}

func NewOrchestrator(pattern *PatternExtractor, modelExt modelRunner, resolver *Resolver, lookup Lookup) *Orchestrator {
	return &Orchestrator{pattern: pattern, model: modelExt, resolver: resolver, lookup: lookup}
}

// Run extracts intelligence from doc. useModel asks for the model-assisted
// pass on top of the always-on pattern pass; a model failure degrades to
// pattern-only rather than failing the document.
func (o *Orchestrator) Run(ctx context.Context, doc *model.Document, useModel bool) (*Output, error) {
	patternRes := o.pattern.Extract(doc)

	var modelRes *Result
	degraded := false
	if useModel && o.model != nil {
		var err error
		modelRes, err = o.model.Extract(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation discards everything, including the
				// pattern results already in hand.
				return nil, eris.Wrap(ctx.Err(), "extract: canceled")
			}
			zap.L().Warn("extract: model path failed, continuing pattern-only",
				zap.String("document_id", doc.ID), zap.Error(err))
			modelRes = nil
			degraded = true
		}
	}

	if modelRes != nil {
		modelRes.Indicators = o.verifyModelCandidates(ctx, doc, modelRes.Indicators)
	}

	merged := mergeCandidates(patternRes, modelRes)
	out := &Output{ModelDegraded: degraded}

	sourceHost := canonicalHost(doc.SourceHost)
	titleLower := strings.ToLower(Refang(doc.Title))
	content := Refang(doc.Title + "\n" + doc.Content)

	for _, mc := range merged {
		if excludedBySourceDomain(mc.candidate, sourceHost) {
			o.audit(ctx, doc.ID, model.AuditSourceDomain, mc.candidate.Key())
			continue
		}

		priorFP, err := o.lookup.IsKnownFalsePositive(ctx, mc.candidate.Type, mc.candidate.Value)
		if err != nil {
			return nil, eris.Wrap(err, "extract: false positive lookup")
		}
		if priorFP {
			o.audit(ctx, doc.ID, model.AuditFalsePositive, mc.candidate.Key())
		}

		inTitle := strings.Contains(titleLower, strings.ToLower(mc.candidate.Value))
		score := o.resolver.Score(mc.candidate.Provenance, mc.corroborated, inTitle, priorFP)

		out.Indicators = append(out.Indicators, model.Indicator{
			Type:       mc.candidate.Type,
			Value:      mc.candidate.Value,
			Confidence: score,
			Evidence:   o.resolver.Evidence(content, mc.candidate.Value),
			Provenance: mc.candidate.Provenance,
		})
	}

	out.Techniques = mergeTechniques(patternRes, modelRes)
	out.Actors = mergeActors(patternRes, modelRes)
	return out, nil
}

// verifyModelCandidates drops any model-produced value that does not appear
// verbatim (case-insensitive, after refanging) in the document.
func (o *Orchestrator) verifyModelCandidates(ctx context.Context, doc *model.Document, candidates []model.Candidate) []model.Candidate {
	haystack := strings.ToLower(Refang(doc.Title + "\n" + doc.Content))
	kept := candidates[:0]
	for _, c := range candidates {
		needle := strings.ToLower(Refang(c.Value))
		if strings.Contains(haystack, needle) {
			kept = append(kept, c)
			continue
		}
		o.audit(ctx, doc.ID, model.AuditVerbatimFailed, c.Key())
	}
	return kept
}

func (o *Orchestrator) audit(ctx context.Context, docID string, reason model.AuditReason, detail string) {
	err := o.lookup.RecordAudit(ctx, model.AuditEvent{
		DocumentID: docID,
		Reason:     reason,
		Detail:     detail,
	})
	if err != nil {
		zap.L().Warn("extract: audit write failed", zap.Error(err))
	}
}

type mergedCandidate struct {
	candidate    model.Candidate
	corroborated bool
}

// mergeCandidates combines the two paths by (type, value). A value seen by
// both becomes a single merged candidate.
func mergeCandidates(patternRes, modelRes *Result) []mergedCandidate {
	var out []mergedCandidate
	index := make(map[string]int)

	for _, c := range patternRes.Indicators {
		index[c.Key()] = len(out)
		out = append(out, mergedCandidate{candidate: c})
	}
	if modelRes == nil {
		return out
	}
	for _, c := range modelRes.Indicators {
		// Compare against the refanged form so a defanged model value
		// corroborates the pattern match.
		key := string(c.Type) + ":" + Refang(c.Value)
		if i, ok := index[key]; ok {
			out[i].candidate.Provenance = model.ProvenanceMerged
			out[i].corroborated = true
			continue
		}
		if i, ok := index[c.Key()]; ok {
			out[i].candidate.Provenance = model.ProvenanceMerged
			out[i].corroborated = true
			continue
		}
		index[c.Key()] = len(out)
		out = append(out, mergedCandidate{candidate: c})
	}
	return out
}

func mergeTechniques(patternRes, modelRes *Result) []TechniqueRef {
	var out []TechniqueRef
	seen := make(map[string]bool)
	for _, src := range []*Result{patternRes, modelRes} {
		if src == nil {
			continue
		}
		for _, t := range src.Techniques {
			key := strings.ToLower(t.Ref)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}

func mergeActors(patternRes, modelRes *Result) []string {
	var out []string
	seen := make(map[string]bool)
	for _, src := range []*Result{patternRes, modelRes} {
		if src == nil {
			continue
		}
		for _, a := range src.Actors {
			key := model.NormalizeText(a)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}

// excludedBySourceDomain rejects indicators that point at the publishing
// site itself: the blog's own domain, URLs on it, and emails at it.
func excludedBySourceDomain(c model.Candidate, sourceHost string) bool {
	if sourceHost == "" {
		return false
	}
	switch c.Type {
	case model.IndicatorDomain:
		return hostMatches(c.Value, sourceHost)
	case model.IndicatorURL:
		u, err := url.Parse(Refang(c.Value))
		if err != nil {
			return false
		}
		return hostMatches(u.Host, sourceHost)
	case model.IndicatorEmail:
		if at := strings.LastIndex(c.Value, "@"); at >= 0 {
			return hostMatches(c.Value[at+1:], sourceHost)
		}
	}
	return false
}

// hostMatches reports whether host equals sourceHost or is a subdomain of
// it, after www-stripping.
func hostMatches(host, sourceHost string) bool {
	h := canonicalHost(strings.ToLower(host))
	return h == sourceHost || strings.HasSuffix(h, "."+sourceHost)
}

// canonicalHost strips a leading www label; mirrors the dedup gate's host
// normalization.
func canonicalHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
