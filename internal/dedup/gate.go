package dedup

import (
	"context"
	"net/url"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
	"github.com/crestline-sec/intelpipe/internal/store"
)

// Store is the slice of the persistence layer the gate needs.
type Store interface {
	GetDocumentByHash(ctx context.Context, contentHash string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]model.Document, error)
	RecordAudit(ctx context.Context, event model.AuditEvent) error
}

// Verdict is the gate's decision about an incoming document.
type Verdict struct {
	IsDuplicate bool
	// CanonicalID is the surviving document when IsDuplicate is true. The
	// earliest-published document always wins.
	CanonicalID string
	// SupersededID is set when the incoming document is older than the
	// stored match and should replace it as canonical.
	SupersededID string
	Similarity   float64
	Reason       model.AuditReason
	// Degraded means the content was too large for similarity comparison
	// and only the exact-hash check ran.
	Degraded bool
}

// Gate decides whether an incoming document duplicates one already stored.
// Exact content-hash matches are always duplicates; otherwise documents from
// the same (or www-equivalent) host inside the comparison window are checked
// by title edit distance, content word overlap, and URL identity.
type Gate struct {
	store Store
	cfg   config.DedupConfig
}

func NewGate(st Store, cfg config.DedupConfig) *Gate {
	return &Gate{store: st, cfg: cfg}
}

// Evaluate runs the dedup checks for doc. The document must already carry
// its normalized content hash; Evaluate never mutates it.
func (g *Gate) Evaluate(ctx context.Context, doc *model.Document) (*Verdict, error) {
	existing, err := g.store.GetDocumentByHash(ctx, doc.ContentHash)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: hash lookup")
	}
	if existing != nil && existing.ID != doc.ID {
		return &Verdict{
			IsDuplicate: true,
			CanonicalID: existing.ID,
			Similarity:  1.0,
			Reason:      model.AuditHashDuplicate,
		}, nil
	}

	if g.cfg.MaxComparisonChars > 0 && len(doc.Content) > g.cfg.MaxComparisonChars {
		audit := model.AuditEvent{
			DocumentID: doc.ID,
			Reason:     model.AuditSimilarityDegraded,
			Detail:     "content exceeds comparison budget, hash check only",
		}
		if err := g.store.RecordAudit(ctx, audit); err != nil {
			zap.L().Warn("dedup: audit write failed", zap.Error(err))
		}
		return &Verdict{Degraded: true}, nil
	}

	candidates, err := g.candidates(ctx, doc)
	if err != nil {
		return nil, err
	}

	docTitle := model.NormalizeText(doc.Title)
	docWords := wordSet(model.NormalizeText(doc.Content))

	for i := range candidates {
		cand := &candidates[i]
		if cand.ID == doc.ID {
			continue
		}

		sim, match := g.compare(doc, cand, docTitle, docWords)
		if !match {
			continue
		}

		v := &Verdict{
			IsDuplicate: true,
			Similarity:  sim,
			Reason:      model.AuditNearDuplicate,
		}
		if cand.PublishedAt.After(doc.PublishedAt) {
			// The incoming document predates the stored one and takes
			// over as canonical.
			v.CanonicalID = doc.ID
			v.SupersededID = cand.ID
		} else {
			v.CanonicalID = cand.ID
		}
		return v, nil
	}

	return &Verdict{}, nil
}

// candidates lists stored documents inside the comparison window that share
// a host with doc.
func (g *Gate) candidates(ctx context.Context, doc *model.Document) ([]model.Document, error) {
	window := g.cfg.Window()
	limit := g.cfg.MaxCandidates
	if limit <= 0 {
		limit = 200
	}

	docs, err := g.store.ListDocuments(ctx, store.DocumentFilter{
		PublishedAfter: doc.PublishedAt.Add(-window),
		Limit:          limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dedup: list candidates")
	}

	host := canonicalHost(doc.SourceHost)
	out := docs[:0]
	for _, d := range docs {
		if d.Status == model.DocStatusDuplicate {
			continue
		}
		if d.PublishedAt.After(doc.PublishedAt.Add(window)) {
			continue
		}
		if canonicalHost(d.SourceHost) != host {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// compare returns the strongest similarity signal and whether any check
// crossed its threshold.
func (g *Gate) compare(doc *model.Document, cand *model.Document, docTitle string, docWords map[string]bool) (float64, bool) {
	if sameURL(doc.SourceURL, cand.SourceURL) {
		return 1.0, true
	}

	titleSim := levenshtein.Similarity(docTitle, model.NormalizeText(cand.Title), nil)
	if titleSim >= g.cfg.TitleThreshold {
		return titleSim, true
	}

	contentSim := jaccard(docWords, wordSet(model.NormalizeText(cand.Content)))
	if contentSim >= g.cfg.ContentThreshold {
		return contentSim, true
	}

	if titleSim > contentSim {
		return titleSim, false
	}
	return contentSim, false
}

// jaccard computes word-set overlap between two documents.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a)
	for w := range b {
		if !a[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// canonicalHost lowercases a host and strips a leading www label so the
// mobile and desktop mirrors of a feed compare equal.
func canonicalHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// sameURL reports whether two source URLs point at the same article: equal
// canonical host and equal non-empty path, query strings ignored.
func sameURL(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	pathA := strings.TrimSuffix(ua.Path, "/")
	pathB := strings.TrimSuffix(ub.Path, "/")
	if pathA == "" || pathB == "" {
		return false
	}
	return canonicalHost(ua.Host) == canonicalHost(ub.Host) && pathA == pathB
}
