package extract

import (
	"strings"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// Scoring constants. Pattern matches are trusted more than model output;
// agreement between the two paths is worth more than either alone.
const (
	basePatternOnly   = 70
	baseModelOnly     = 50
	corroborationBump = 15
	titleBump         = 10
	falsePositiveDrop = 20
)

// Resolver turns merged candidates into scored indicators with evidence
// sentences.
type Resolver struct {
	maxEvidenceChars int
}

func NewResolver(maxEvidenceChars int) *Resolver {
	if maxEvidenceChars <= 0 {
		maxEvidenceChars = 300
	}
	return &Resolver{maxEvidenceChars: maxEvidenceChars}
}

// Score computes the confidence for a candidate. corroborated means both
// the pattern and model paths produced the same (type, value); inTitle
// means the value appears in the document title; priorFP means a reviewer
// previously marked this value a false positive.
func (r *Resolver) Score(provenance model.Provenance, corroborated, inTitle, priorFP bool) int {
	var score int
	switch {
	case corroborated:
		score = basePatternOnly + corroborationBump
	case provenance == model.ProvenancePattern:
		score = basePatternOnly
	default:
		score = baseModelOnly
	}
	if inTitle {
		score += titleBump
	}
	if priorFP {
		score -= falsePositiveDrop
	}
	return model.ClampConfidence(score)
}

// Evidence returns the sentence of content containing value, bounded to the
// configured length. Falls back to a character window when no sentence
// boundary is found near the match.
func (r *Resolver) Evidence(content, value string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, strings.ToLower(value))
	if idx < 0 {
		return ""
	}

	start := idx
	for start > 0 {
		c := content[start-1]
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			break
		}
		start--
	}
	end := idx + len(value)
	for end < len(content) {
		c := content[end]
		end++
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			break
		}
	}

	sentence := strings.TrimSpace(content[start:end])
	if len(sentence) > r.maxEvidenceChars {
		// Keep the window centered on the match.
		relIdx := idx - start
		half := r.maxEvidenceChars / 2
		ws := relIdx - half
		if ws < 0 {
			ws = 0
		}
		we := ws + r.maxEvidenceChars
		if we > len(sentence) {
			we = len(sentence)
			ws = we - r.maxEvidenceChars
			if ws < 0 {
				ws = 0
			}
		}
		sentence = strings.TrimSpace(sentence[ws:we])
	}
	return sentence
}
