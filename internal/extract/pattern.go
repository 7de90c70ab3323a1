package extract

import (
	"net"
	"regexp"
	"strings"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// Result is everything one extractor pulled from a document, before
// scoring, taxonomy mapping, or persistence.
type Result struct {
	Indicators []model.Candidate
	Techniques []TechniqueRef
	Actors     []string
}

// TechniqueRef is a raw technique observation: either an explicit attack
// taxonomy id (T1566) or a behavior phrase to be resolved by the mapper.
type TechniqueRef struct {
	Ref      string
	Evidence string
}

var (
	reIPv4     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	reIPv6     = regexp.MustCompile(`\b(?:[A-Fa-f0-9]{1,4}:){2,7}[A-Fa-f0-9]{1,4}\b`)
	reURL      = regexp.MustCompile(`\bhttps?://[^\s"'<>)\]]+`)
	reDomain   = regexp.MustCompile(`\b[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[A-Za-z]{2,10}\b`)
	reHash     = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b|\b[a-fA-F0-9]{40}\b|\b[a-fA-F0-9]{32}\b`)
	reEmail    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	reCVE      = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)
	reRegistry = regexp.MustCompile(`\b(?:HKLM|HKCU|HKCR|HKU|HKEY_[A-Z_]+)\\[^\s"',;]+`)
	reWinPath  = regexp.MustCompile(`\b[A-Za-z]:\\(?:[^\\/:*?"<>|\r\n ]+\\)+[^\\/:*?"<>|\r\n ]+`)
	reUnixPath = regexp.MustCompile(`(?:^|[\s(])(/(?:etc|tmp|var|usr|opt|home|bin)/[^\s"',;)]+)`)
	reAttackID = regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`)
)

// defangReplacer undoes the defensive obfuscation threat reports apply to
// live indicators before pattern matching runs.
var defangReplacer = strings.NewReplacer(
	"hxxps://", "https://",
	"hxxp://", "http://",
	"[.]", ".",
	"(.)", ".",
	"[:]", ":",
	"[@]", "@",
	"[dot]", ".",
)

// Refang normalizes defanged indicator text.
func Refang(s string) string {
	return defangReplacer.Replace(s)
}

// fileExtTLDs are trailing labels that make a domain match almost certainly
// a file name instead.
var fileExtTLDs = map[string]bool{
	"exe": true, "dll": true, "bat": true, "ps1": true, "vbs": true,
	"doc": true, "docx": true, "xls": true, "xlsx": true, "pdf": true,
	"zip": true, "rar": true, "txt": true, "log": true, "tmp": true,
	"dat": true, "ini": true, "lnk": true, "iso": true, "msi": true,
	"jpg": true, "png": true, "gif": true, "js": true, "py": true,
	"sh": true, "bin": true, "dmp": true, "yaml": true, "yml": true,
	"json": true, "xml": true, "html": true, "htm": true, "md": true,
	"conf": true, "cfg": true, "go": true,
}

// PatternExtractor runs the deterministic regex grammar over document text.
// It never invents values: every candidate is a literal match against the
// refanged content.
type PatternExtractor struct {
	actorNames []string
	phrases    map[string]string
}

// NewPatternExtractor builds a pattern extractor. actorNames is the list of
// known threat actor names to scan for; phrases maps lowercase behavior
// phrases to attack technique ids.
func NewPatternExtractor(actorNames []string, phrases map[string]string) *PatternExtractor {
	return &PatternExtractor{actorNames: actorNames, phrases: phrases}
}

// Extract pulls indicators, technique references, and actor names from the
// document. Output order is deterministic per type; values are deduplicated
// by (type, value).
func (e *PatternExtractor) Extract(doc *model.Document) *Result {
	text := Refang(doc.Title + "\n" + doc.Content)
	res := &Result{}
	seen := make(map[string]bool)

	add := func(typ model.IndicatorType, value string) {
		c := model.Candidate{Type: typ, Value: value, Provenance: model.ProvenancePattern}
		if seen[c.Key()] {
			return
		}
		seen[c.Key()] = true
		res.Indicators = append(res.Indicators, c)
	}

	for _, m := range reURL.FindAllString(text, -1) {
		add(model.IndicatorURL, strings.TrimRight(m, ".,;"))
	}
	for _, m := range reIPv4.FindAllString(text, -1) {
		if ip := net.ParseIP(m); ip != nil {
			add(model.IndicatorIP, m)
		}
	}
	for _, m := range reIPv6.FindAllString(text, -1) {
		if ip := net.ParseIP(m); ip != nil && strings.Contains(m, ":") {
			add(model.IndicatorIPv6, m)
		}
	}
	for _, m := range reHash.FindAllString(text, -1) {
		add(model.IndicatorHash, strings.ToLower(m))
	}
	for _, m := range reCVE.FindAllString(text, -1) {
		add(model.IndicatorCVE, strings.ToUpper(m))
	}
	for _, m := range reEmail.FindAllString(text, -1) {
		add(model.IndicatorEmail, strings.ToLower(m))
	}
	for _, m := range reDomain.FindAllString(text, -1) {
		if validDomain(m) {
			add(model.IndicatorDomain, strings.ToLower(m))
		}
	}
	// Registry keys and paths legally contain dots, so a sentence period
	// rides along with the match and has to be trimmed off.
	for _, m := range reRegistry.FindAllString(text, -1) {
		add(model.IndicatorRegistryKey, strings.TrimRight(m, "."))
	}
	for _, m := range reWinPath.FindAllString(text, -1) {
		add(model.IndicatorFilePath, strings.TrimRight(m, "."))
	}
	for _, groups := range reUnixPath.FindAllStringSubmatch(text, -1) {
		add(model.IndicatorFilePath, strings.TrimRight(groups[1], "."))
	}

	res.Techniques = e.techniqueRefs(text)
	res.Actors = e.actorHits(text)
	return res
}

// techniqueRefs finds explicit attack ids plus known behavior phrases.
func (e *PatternExtractor) techniqueRefs(text string) []TechniqueRef {
	var refs []TechniqueRef
	seen := make(map[string]bool)

	for _, m := range reAttackID.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			refs = append(refs, TechniqueRef{Ref: m, Evidence: contextAround(text, m)})
		}
	}

	lower := strings.ToLower(text)
	for phrase, id := range e.phrases {
		if seen[id] {
			continue
		}
		if strings.Contains(lower, phrase) {
			seen[id] = true
			refs = append(refs, TechniqueRef{Ref: id, Evidence: contextAround(lower, phrase)})
		}
	}
	return refs
}

// actorHits scans for known actor names, whole-word and case-insensitive.
func (e *PatternExtractor) actorHits(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, name := range e.actorNames {
		if containsWord(lower, strings.ToLower(name)) {
			hits = append(hits, name)
		}
	}
	return hits
}

func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// contextAround returns up to 80 chars of text surrounding the first match.
func contextAround(text, match string) string {
	i := strings.Index(text, match)
	if i < 0 {
		return ""
	}
	start := i - 40
	if start < 0 {
		start = 0
	}
	end := i + len(match) + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

func validDomain(d string) bool {
	if net.ParseIP(d) != nil {
		return false
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return false
	}
	tld := strings.ToLower(labels[len(labels)-1])
	if fileExtTLDs[tld] {
		return false
	}
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
