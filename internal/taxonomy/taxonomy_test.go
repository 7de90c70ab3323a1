package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-sec/intelpipe/internal/extract"
	"github.com/crestline-sec/intelpipe/internal/model"
)

func TestMapExactID(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "T1566.001", Evidence: "spearphishing attachment"}}, 70)
	require.Len(t, got, 1)
	assert.Equal(t, "T1566.001", got[0].TechniqueID)
	assert.Equal(t, "Spearphishing Attachment", got[0].Name)
	assert.Equal(t, "initial-access", got[0].Tactic)
	assert.Equal(t, 70, got[0].Confidence)
}

func TestMapByName(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "OS Credential Dumping"}}, 50)
	require.Len(t, got, 1)
	assert.Equal(t, "T1003", got[0].TechniqueID)
}

func TestMapByKeywordPhrase(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "credential dumping"}}, 50)
	require.Len(t, got, 1)
	assert.Equal(t, "T1003", got[0].TechniqueID)
}

func TestMapFuzzyName(t *testing.T) {
	m := NewMapper()

	// Close misspelling still resolves.
	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "OS Credential Dumpng"}}, 50)
	require.Len(t, got, 1)
	assert.Equal(t, "T1003", got[0].TechniqueID)
}

func TestMapMultiTacticDuplication(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "T1078"}}, 70)
	require.Len(t, got, 4)

	tactics := map[string]bool{}
	for _, mention := range got {
		assert.Equal(t, "T1078", mention.TechniqueID)
		tactics[mention.Tactic] = true
	}
	assert.Len(t, tactics, 4)
}

func TestMapUnmappedRetained(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{{Ref: "quantum entanglement exfiltration"}}, 50)
	require.Len(t, got, 1)
	assert.Equal(t, model.UnmappedTechniqueID, got[0].TechniqueID)
	assert.Equal(t, "quantum entanglement exfiltration", got[0].Name)
}

func TestMapDeduplicates(t *testing.T) {
	m := NewMapper()

	got := m.Map("doc-1", []extract.TechniqueRef{
		{Ref: "T1003"},
		{Ref: "OS Credential Dumping"},
	}, 70)
	require.Len(t, got, 1)
}

func TestKeywordsFeedPatternExtractor(t *testing.T) {
	m := NewMapper()

	kw := m.Keywords()
	assert.Equal(t, "T1003", kw["credential dumping"])
	assert.Equal(t, "T1486", kw["ransomware"])
	assert.NotEmpty(t, kw)
}
