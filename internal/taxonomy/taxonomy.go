// Package taxonomy maps raw technique observations onto a curated attack
// technique table. Mentions that resolve to nothing are kept under the
// unmapped id for later curation instead of being dropped.
package taxonomy

import (
	"strings"

	"github.com/agext/levenshtein"

	"github.com/crestline-sec/intelpipe/internal/extract"
	"github.com/crestline-sec/intelpipe/internal/model"
)

// Technique is one row of the embedded attack taxonomy.
type Technique struct {
	ID      string
	Name    string
	Tactics []string
	// Keywords are behavior phrases that imply this technique when they
	// appear in report text.
	Keywords []string
}

// fuzzyNameThreshold is the minimum edit-distance similarity for a behavior
// name to resolve against a technique name.
const fuzzyNameThreshold = 0.85

// builtin is a curated slice of the enterprise attack taxonomy covering the
// techniques threat reporting mentions most.
var builtin = []Technique{
	{ID: "T1566", Name: "Phishing", Tactics: []string{"initial-access"},
		Keywords: []string{"phishing", "spearphishing", "phishing email", "malicious attachment"}},
	{ID: "T1566.001", Name: "Spearphishing Attachment", Tactics: []string{"initial-access"},
		Keywords: []string{"spearphishing attachment", "weaponized document"}},
	{ID: "T1190", Name: "Exploit Public-Facing Application", Tactics: []string{"initial-access"},
		Keywords: []string{"exploited a public-facing", "internet-facing application", "exploitation of a vulnerability in"}},
	{ID: "T1078", Name: "Valid Accounts", Tactics: []string{"defense-evasion", "persistence", "privilege-escalation", "initial-access"},
		Keywords: []string{"valid accounts", "stolen credentials", "compromised credentials", "legitimate credentials"}},
	{ID: "T1059", Name: "Command and Scripting Interpreter", Tactics: []string{"execution"},
		Keywords: []string{"powershell", "command-line interpreter", "scripting interpreter", "bash script"}},
	{ID: "T1053", Name: "Scheduled Task/Job", Tactics: []string{"execution", "persistence", "privilege-escalation"},
		Keywords: []string{"scheduled task", "cron job"}},
	{ID: "T1547", Name: "Boot or Logon Autostart Execution", Tactics: []string{"persistence", "privilege-escalation"},
		Keywords: []string{"run key", "registry run", "autostart"}},
	{ID: "T1003", Name: "OS Credential Dumping", Tactics: []string{"credential-access"},
		Keywords: []string{"credential dumping", "dumped credentials", "lsass", "mimikatz"}},
	{ID: "T1110", Name: "Brute Force", Tactics: []string{"credential-access"},
		Keywords: []string{"brute force", "password spraying", "credential stuffing"}},
	{ID: "T1621", Name: "Multi-Factor Authentication Request Generation", Tactics: []string{"credential-access"},
		Keywords: []string{"mfa fatigue", "mfa bombing", "push notification spam"}},
	{ID: "T1021", Name: "Remote Services", Tactics: []string{"lateral-movement"},
		Keywords: []string{"lateral movement", "remote desktop", "smb share", "moved laterally"}},
	{ID: "T1071", Name: "Application Layer Protocol", Tactics: []string{"command-and-control"},
		Keywords: []string{"command and control", "c2 channel", "beaconing", "beaconed"}},
	{ID: "T1105", Name: "Ingress Tool Transfer", Tactics: []string{"command-and-control"},
		Keywords: []string{"downloaded a payload", "staged payloads", "tool transfer", "second-stage payload"}},
	{ID: "T1041", Name: "Exfiltration Over C2 Channel", Tactics: []string{"exfiltration"},
		Keywords: []string{"exfiltration", "exfiltrated", "data theft over"}},
	{ID: "T1486", Name: "Data Encrypted for Impact", Tactics: []string{"impact"},
		Keywords: []string{"ransomware", "encrypted for impact", "files were encrypted"}},
	{ID: "T1490", Name: "Inhibit System Recovery", Tactics: []string{"impact"},
		Keywords: []string{"deleted shadow copies", "vssadmin delete", "disabled backups"}},
	{ID: "T1562", Name: "Impair Defenses", Tactics: []string{"defense-evasion"},
		Keywords: []string{"disabled antivirus", "tampered with edr", "impair defenses", "disabled security tools"}},
	{ID: "T1027", Name: "Obfuscated Files or Information", Tactics: []string{"defense-evasion"},
		Keywords: []string{"obfuscated", "packed binary", "encoded payload"}},
	{ID: "T1046", Name: "Network Service Discovery", Tactics: []string{"discovery"},
		Keywords: []string{"port scanning", "network scanning", "service discovery"}},
	{ID: "T1598", Name: "Phishing for Information", Tactics: []string{"reconnaissance"},
		Keywords: []string{"phishing for information", "smishing", "vishing"}},
}

// Mapper resolves technique references against the taxonomy table.
type Mapper struct {
	byID     map[string]*Technique
	byName   map[string]*Technique
	ordered  []Technique
	keywords map[string]string
}

func NewMapper() *Mapper {
	return newMapper(builtin)
}

func newMapper(table []Technique) *Mapper {
	m := &Mapper{
		byID:     make(map[string]*Technique, len(table)),
		byName:   make(map[string]*Technique, len(table)),
		ordered:  table,
		keywords: make(map[string]string),
	}
	for i := range m.ordered {
		t := &m.ordered[i]
		m.byID[t.ID] = t
		m.byName[model.NormalizeText(t.Name)] = t
		for _, kw := range t.Keywords {
			m.keywords[strings.ToLower(kw)] = t.ID
		}
	}
	return m
}

// Keywords exposes the phrase table for the pattern extractor.
func (m *Mapper) Keywords() map[string]string {
	return m.keywords
}

// Map resolves raw technique refs into mentions for the document. A
// technique spanning multiple tactics yields one mention per tactic.
// Unresolvable refs are kept with the unmapped id.
func (m *Mapper) Map(documentID string, refs []extract.TechniqueRef, confidence int) []model.TechniqueMention {
	var out []model.TechniqueMention
	seen := make(map[string]bool)

	for _, ref := range refs {
		tech := m.resolve(ref.Ref)
		if tech == nil {
			key := model.UnmappedTechniqueID + ":" + model.NormalizeText(ref.Ref)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, model.TechniqueMention{
				DocumentID:  documentID,
				TechniqueID: model.UnmappedTechniqueID,
				Name:        ref.Ref,
				Confidence:  confidence,
				Evidence:    ref.Evidence,
			})
			continue
		}

		for _, tactic := range tech.Tactics {
			key := tech.ID + ":" + tactic
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, model.TechniqueMention{
				DocumentID:  documentID,
				TechniqueID: tech.ID,
				Name:        tech.Name,
				Tactic:      tactic,
				Confidence:  confidence,
				Evidence:    ref.Evidence,
			})
		}
	}
	return out
}

// resolve tries exact id, exact normalized name, keyword phrase, then fuzzy
// name match, in that order.
func (m *Mapper) resolve(ref string) *Technique {
	trimmed := strings.TrimSpace(ref)
	if t, ok := m.byID[strings.ToUpper(trimmed)]; ok {
		return t
	}

	normalized := model.NormalizeText(trimmed)
	if t, ok := m.byName[normalized]; ok {
		return t
	}
	if id, ok := m.keywords[normalized]; ok {
		return m.byID[id]
	}

	var best *Technique
	bestSim := fuzzyNameThreshold
	for i := range m.ordered {
		t := &m.ordered[i]
		sim := levenshtein.Similarity(normalized, model.NormalizeText(t.Name), nil)
		if sim >= bestSim {
			bestSim = sim
			best = t
		}
	}
	return best
}
