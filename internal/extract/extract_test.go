package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-sec/intelpipe/internal/model"
)

func patternDoc(title, content string) *model.Document {
	return &model.Document{
		ID:         "doc-1",
		Title:      title,
		Content:    content,
		SourceHost: "example-security-blog.com",
	}
}

func TestPatternExtractorIndicators(t *testing.T) {
	e := NewPatternExtractor(nil, nil)

	doc := patternDoc("CVE-2024-9999 exploited in the wild",
		`The actor staged payloads at hxxps://cdn.badsite[.]net/drop.bin and beaconed to 203.0.113.5.
Secondary C2 at update.badsite.net. Dropper hash 5d41402abc4b2a76b9719d911017c592 was mailed
from ops@badsite.net. Persistence via HKLM\Software\Microsoft\Windows\CurrentVersion\Run\Updater
and C:\ProgramData\svc\updater.exe. Config written to /etc/cron.d/updater.`)

	res := e.Extract(doc)

	byType := map[model.IndicatorType][]string{}
	for _, c := range res.Indicators {
		byType[c.Type] = append(byType[c.Type], c.Value)
		assert.Equal(t, model.ProvenancePattern, c.Provenance)
	}

	assert.Contains(t, byType[model.IndicatorCVE], "CVE-2024-9999")
	assert.Contains(t, byType[model.IndicatorIP], "203.0.113.5")
	assert.Contains(t, byType[model.IndicatorURL], "https://cdn.badsite.net/drop.bin")
	assert.Contains(t, byType[model.IndicatorDomain], "update.badsite.net")
	assert.Contains(t, byType[model.IndicatorHash], "5d41402abc4b2a76b9719d911017c592")
	assert.Contains(t, byType[model.IndicatorEmail], "ops@badsite.net")
	assert.NotEmpty(t, byType[model.IndicatorRegistryKey])
	assert.Contains(t, byType[model.IndicatorFilePath], `C:\ProgramData\svc\updater.exe`)
	assert.Contains(t, byType[model.IndicatorFilePath], "/etc/cron.d/updater")
}

func TestPatternExtractorRejectsInvalidValues(t *testing.T) {
	e := NewPatternExtractor(nil, nil)

	res := e.Extract(patternDoc("junk",
		"bad octets 999.1.2.300 and a file named loader.exe are not indicators"))

	for _, c := range res.Indicators {
		assert.NotEqual(t, "999.1.2.300", c.Value)
		assert.NotEqual(t, model.Candidate{Type: model.IndicatorDomain, Value: "loader.exe"}.Key(), c.Key())
	}
}

func TestPatternExtractorDeduplicates(t *testing.T) {
	e := NewPatternExtractor(nil, nil)

	res := e.Extract(patternDoc("repeat",
		"203.0.113.5 appeared, then 203.0.113.5 again, then 203.0.113.5 once more"))

	count := 0
	for _, c := range res.Indicators {
		if c.Value == "203.0.113.5" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestPatternExtractorTechniquesAndActors(t *testing.T) {
	e := NewPatternExtractor(
		[]string{"Scattered Spider", "APT29"},
		map[string]string{"credential dumping": "T1003"},
	)

	res := e.Extract(patternDoc("Scattered Spider activity",
		"The group used T1566.001 spearphishing, then credential dumping against domain controllers."))

	var refs []string
	for _, r := range res.Techniques {
		refs = append(refs, r.Ref)
	}
	assert.Contains(t, refs, "T1566.001")
	assert.Contains(t, refs, "T1003")
	assert.Equal(t, []string{"Scattered Spider"}, res.Actors)
}

func TestContainsWordBoundaries(t *testing.T) {
	assert.True(t, containsWord("seen apt29 activity", "apt29"))
	assert.False(t, containsWord("seen apt290 activity", "apt29"))
	assert.True(t, containsWord("apt29", "apt29"))
}

func TestResolverScore(t *testing.T) {
	r := NewResolver(300)

	tests := []struct {
		name         string
		provenance   model.Provenance
		corroborated bool
		inTitle      bool
		priorFP      bool
		want         int
	}{
		{"pattern only", model.ProvenancePattern, false, false, false, 70},
		{"model only", model.ProvenanceModel, false, false, false, 50},
		{"corroborated", model.ProvenanceMerged, true, false, false, 85},
		{"corroborated in title", model.ProvenanceMerged, true, true, false, 95},
		{"pattern with prior false positive", model.ProvenancePattern, false, false, true, 50},
		{"everything at once", model.ProvenanceMerged, true, true, true, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Score(tt.provenance, tt.corroborated, tt.inTitle, tt.priorFP))
		})
	}
}

func TestResolverEvidence(t *testing.T) {
	r := NewResolver(300)

	content := "First sentence here. The actor beaconed to 203.0.113.5 over HTTPS. Last sentence."
	ev := r.Evidence(content, "203.0.113.5")
	assert.Equal(t, "The actor beaconed to 203.0.113.5 over HTTPS.", ev)

	assert.Empty(t, r.Evidence(content, "198.51.100.7"))
}

func TestResolverEvidenceBounded(t *testing.T) {
	r := NewResolver(40)

	long := "prefix words repeated many many many many many times around 203.0.113.5 and then more padding words continuing on and on without a period"
	ev := r.Evidence(long, "203.0.113.5")
	assert.LessOrEqual(t, len(ev), 40)
	assert.Contains(t, ev, "203.0.113.5")
}

func TestParseModelResponse(t *testing.T) {
	text := "```json\n{\"indicators\":[{\"type\":\"ip\",\"value\":\"203.0.113.5\"},{\"type\":\"hostname\",\"value\":\"bad.example.net\"}],\"techniques\":[\"credential dumping\"],\"actors\":[\"APT29\"]}\n```"

	res, err := parseModelResponse(text)
	require.NoError(t, err)
	require.Len(t, res.Indicators, 2)
	assert.Equal(t, model.IndicatorIP, res.Indicators[0].Type)
	assert.Equal(t, model.ProvenanceModel, res.Indicators[0].Provenance)
	assert.Equal(t, model.IndicatorDomain, res.Indicators[1].Type)
	require.Len(t, res.Techniques, 1)
	assert.Equal(t, []string{"APT29"}, res.Actors)
}

func TestParseModelResponseGarbage(t *testing.T) {
	_, err := parseModelResponse("I could not process this document, sorry.")
	assert.Error(t, err)
}

// --- orchestrator ---

type fakeLookup struct {
	falsePositives map[string]bool
	audits         []model.AuditEvent
}

func (f *fakeLookup) IsKnownFalsePositive(_ context.Context, typ model.IndicatorType, value string) (bool, error) {
	return f.falsePositives[string(typ)+":"+value], nil
}

func (f *fakeLookup) RecordAudit(_ context.Context, event model.AuditEvent) error {
	f.audits = append(f.audits, event)
	return nil
}

func (f *fakeLookup) auditReasons() []model.AuditReason {
	var out []model.AuditReason
	for _, e := range f.audits {
		out = append(out, e.Reason)
	}
	return out
}

type stubModel struct {
	res *Result
	err error
}

func (s *stubModel) Extract(_ context.Context, _ *model.Document) (*Result, error) {
	return s.res, s.err
}

func newTestOrchestrator(m modelRunner, lookup *fakeLookup) *Orchestrator {
	return NewOrchestrator(NewPatternExtractor(nil, nil), m, NewResolver(300), lookup)
}

func TestOrchestratorRejectsHallucinatedIndicator(t *testing.T) {
	lookup := &fakeLookup{}
	stub := &stubModel{res: &Result{Indicators: []model.Candidate{
		{Type: model.IndicatorIP, Value: "198.51.100.7", Provenance: model.ProvenanceModel},
	}}}
	o := newTestOrchestrator(stub, lookup)

	doc := patternDoc("Campaign report", "The actor beaconed to 203.0.113.5 over HTTPS.")
	out, err := o.Run(context.Background(), doc, true)
	require.NoError(t, err)

	for _, ind := range out.Indicators {
		assert.NotEqual(t, "198.51.100.7", ind.Value)
	}
	assert.Contains(t, lookup.auditReasons(), model.AuditVerbatimFailed)
}

func TestOrchestratorExcludesSourceDomain(t *testing.T) {
	lookup := &fakeLookup{}
	o := newTestOrchestrator(nil, lookup)

	doc := patternDoc("Weekly roundup",
		"Read more at https://example-security-blog.com/posts/weekly. Real C2 at bad.example.net was observed.")
	out, err := o.Run(context.Background(), doc, false)
	require.NoError(t, err)

	var values []string
	for _, ind := range out.Indicators {
		values = append(values, ind.Value)
	}
	assert.NotContains(t, values, "example-security-blog.com")
	assert.NotContains(t, values, "https://example-security-blog.com/posts/weekly")
	assert.Contains(t, values, "bad.example.net")
	assert.Contains(t, lookup.auditReasons(), model.AuditSourceDomain)
}

func TestOrchestratorCorroborationRaisesConfidence(t *testing.T) {
	lookup := &fakeLookup{}
	stub := &stubModel{res: &Result{Indicators: []model.Candidate{
		{Type: model.IndicatorIP, Value: "203.0.113.5", Provenance: model.ProvenanceModel},
	}}}
	o := newTestOrchestrator(stub, lookup)

	doc := patternDoc("Campaign report", "The actor beaconed to 203.0.113.5 over HTTPS.")
	out, err := o.Run(context.Background(), doc, true)
	require.NoError(t, err)

	require.Len(t, out.Indicators, 1)
	ind := out.Indicators[0]
	assert.Equal(t, model.ProvenanceMerged, ind.Provenance)
	assert.Equal(t, 85, ind.Confidence)
	assert.Contains(t, ind.Evidence, "203.0.113.5")
}

func TestOrchestratorTitleMentionBonus(t *testing.T) {
	lookup := &fakeLookup{}
	o := newTestOrchestrator(nil, lookup)

	doc := patternDoc("CVE-2024-9999 exploited in the wild",
		"Exploitation of CVE-2024-9999 delivers a loader from 203.0.113.5.")
	out, err := o.Run(context.Background(), doc, false)
	require.NoError(t, err)

	scores := map[string]int{}
	for _, ind := range out.Indicators {
		scores[ind.Value] = ind.Confidence
	}
	assert.Equal(t, 80, scores["CVE-2024-9999"])
	assert.Equal(t, 70, scores["203.0.113.5"])
}

func TestOrchestratorFalsePositivePenalty(t *testing.T) {
	lookup := &fakeLookup{falsePositives: map[string]bool{"ip:203.0.113.5": true}}
	o := newTestOrchestrator(nil, lookup)

	doc := patternDoc("Campaign report", "The actor beaconed to 203.0.113.5 over HTTPS.")
	out, err := o.Run(context.Background(), doc, false)
	require.NoError(t, err)

	require.Len(t, out.Indicators, 1)
	assert.Equal(t, 50, out.Indicators[0].Confidence)
	assert.Contains(t, lookup.auditReasons(), model.AuditFalsePositive)
}

func TestOrchestratorModelFailureDegrades(t *testing.T) {
	lookup := &fakeLookup{}
	stub := &stubModel{err: eris.New("api unavailable")}
	o := newTestOrchestrator(stub, lookup)

	doc := patternDoc("Campaign report", "The actor beaconed to 203.0.113.5 over HTTPS.")
	out, err := o.Run(context.Background(), doc, true)
	require.NoError(t, err)

	assert.True(t, out.ModelDegraded)
	require.Len(t, out.Indicators, 1)
	assert.Equal(t, 70, out.Indicators[0].Confidence)
}

func TestOrchestratorCancellationDiscardsResults(t *testing.T) {
	lookup := &fakeLookup{}
	stub := &stubModel{err: context.Canceled}
	o := newTestOrchestrator(stub, lookup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := patternDoc("Campaign report", "The actor beaconed to 203.0.113.5 over HTTPS.")
	out, err := o.Run(ctx, doc, true)
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestOrchestratorDefangedCorroboration(t *testing.T) {
	lookup := &fakeLookup{}
	stub := &stubModel{res: &Result{Indicators: []model.Candidate{
		{Type: model.IndicatorDomain, Value: "cdn.badsite[.]net", Provenance: model.ProvenanceModel},
	}}}
	o := newTestOrchestrator(stub, lookup)

	doc := patternDoc("Campaign report", "Payloads staged at cdn.badsite[.]net yesterday.")
	out, err := o.Run(context.Background(), doc, true)
	require.NoError(t, err)

	found := false
	for _, ind := range out.Indicators {
		if ind.Value == "cdn.badsite.net" {
			found = true
			assert.Equal(t, model.ProvenanceMerged, ind.Provenance)
		}
	}
	assert.True(t, found)
}
