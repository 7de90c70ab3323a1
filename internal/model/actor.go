package model

import "time"

// ActorMention is a raw threat-actor name observed in a document. Immutable
// once created; the registry consumes mentions by setting ProfileID, it
// never deletes them.
type ActorMention struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DocumentID string    `json:"document_id"`
	ProfileID  string    `json:"profile_id,omitempty"`
	SeenAt     time.Time `json:"seen_at"`
}

// ThreatActorProfile is the canonical, alias-aware record for a threat
// actor. Never hard-deleted: profile merges redirect the losing id to the
// earlier-created canonical id.
type ThreatActorProfile struct {
	ID             string    `json:"id"`
	CanonicalName  string    `json:"canonical_name"`
	Aliases        []string  `json:"aliases"`
	TTPs           []string  `json:"ttps,omitempty"`
	Infrastructure []string  `json:"infrastructure,omitempty"`
	TargetSectors  []string  `json:"target_sectors,omitempty"`
	ArticleCount   int       `json:"article_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	LastEnrichedAt time.Time `json:"last_enriched_at"`
	// MergedInto holds the surviving canonical id after a merge; empty for
	// live profiles.
	MergedInto string `json:"merged_into,omitempty"`
}

// HasAlias reports whether name matches the canonical name or any alias,
// case-insensitively after normalization.
func (p *ThreatActorProfile) HasAlias(name string) bool {
	n := NormalizeText(name)
	if NormalizeText(p.CanonicalName) == n {
		return true
	}
	for _, a := range p.Aliases {
		if NormalizeText(a) == n {
			return true
		}
	}
	return false
}
