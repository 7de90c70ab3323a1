package model

// UnmappedTechniqueID marks a technique mention that could not be resolved
// against the attack taxonomy. Unmapped mentions are retained for manual
// curation, never dropped.
const UnmappedTechniqueID = "unmapped"

// TechniqueMention is a behavioral pattern observed in a document, mapped
// (or not) onto the attack taxonomy. A technique applicable to multiple
// tactics is recorded once per tactic for downstream heatmap consumers.
type TechniqueMention struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	TechniqueID string `json:"technique_id"`
	Name        string `json:"name"`
	Tactic      string `json:"tactic,omitempty"`
	Confidence  int    `json:"confidence"`
	Evidence    string `json:"evidence,omitempty"`
}
