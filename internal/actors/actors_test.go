package actors

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
)

func TestUnionFind(t *testing.T) {
	u := newUnionFind()
	a, b, c := u.add(), u.add(), u.add()

	assert.NotEqual(t, u.find(a), u.find(b))
	u.union(a, b)
	assert.Equal(t, u.find(a), u.find(b))
	assert.NotEqual(t, u.find(a), u.find(c))

	u.union(b, c)
	assert.Equal(t, u.find(a), u.find(c))
	assert.Equal(t, 3, u.size())
}

func TestAliasTableLookup(t *testing.T) {
	tbl := DefaultAliasTable()

	g := tbl.Group("unc3944")
	require.NotNil(t, g)
	assert.Equal(t, "Scattered Spider", g.Canonical)

	g = tbl.Group("Roasted 0ktapus")
	require.NotNil(t, g)
	assert.Equal(t, "Scattered Spider", g.Canonical)

	assert.Nil(t, tbl.Group("Unknown Wombat"))
	assert.Contains(t, tbl.Names(), "Scattered Spider")
}

func TestLoadAliasTableMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := `groups:
  - canonical: Scattered Spider
    aliases: [Muddled Libra]
  - canonical: Wizard Spider
    aliases: [Trickbot Group]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := LoadAliasTable(path)
	require.NoError(t, err)

	// File entries extend the built-in group.
	g := tbl.Group("Muddled Libra")
	require.NotNil(t, g)
	assert.Equal(t, "Scattered Spider", g.Canonical)
	// Built-in aliases survive.
	require.NotNil(t, tbl.Group("UNC3944"))
	// New groups are added.
	g = tbl.Group("Trickbot Group")
	require.NotNil(t, g)
	assert.Equal(t, "Wizard Spider", g.Canonical)
}

func TestLoadAliasTableMissingFile(t *testing.T) {
	_, err := LoadAliasTable("/no/such/file.yaml")
	assert.Error(t, err)
}

// memStore is an in-memory Store for registry tests.
type memStore struct {
	mu         sync.Mutex
	mentions   map[string]*model.ActorMention
	profiles   map[string]*model.ThreatActorProfile
	techniques map[string][]model.TechniqueMention
	indicators map[string][]model.Indicator
	audits     []model.AuditEvent
}

func newMemStore() *memStore {
	return &memStore{
		mentions:   make(map[string]*model.ActorMention),
		profiles:   make(map[string]*model.ThreatActorProfile),
		techniques: make(map[string][]model.TechniqueMention),
		indicators: make(map[string][]model.Indicator),
	}
}

func (m *memStore) addMention(name, docID string, seenAt time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.mentions[id] = &model.ActorMention{ID: id, Name: name, DocumentID: docID, SeenAt: seenAt}
	return id
}

func (m *memStore) ListUnresolvedMentions(_ context.Context, limit int) ([]model.ActorMention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ActorMention
	for _, mention := range m.mentions {
		if mention.ProfileID == "" {
			out = append(out, *mention)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) AssignMentionProfile(_ context.Context, mentionID, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentions[mentionID].ProfileID = profileID
	return nil
}

func (m *memStore) SaveProfile(_ context.Context, p *model.ThreatActorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (*model.ThreatActorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProfiles(_ context.Context) ([]model.ThreatActorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ThreatActorProfile
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) ListTechniquesByDocument(_ context.Context, docID string) ([]model.TechniqueMention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.techniques[docID], nil
}

func (m *memStore) ListIndicatorsByDocument(_ context.Context, docID string) ([]model.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicators[docID], nil
}

func (m *memStore) RecordAudit(_ context.Context, event model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, event)
	return nil
}

func (m *memStore) liveProfiles() []*model.ThreatActorProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ThreatActorProfile
	for _, p := range m.profiles {
		if p.MergedInto == "" {
			out = append(out, p)
		}
	}
	return out
}

var t0 = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func TestRegistryAliasConvergence(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	ctx := context.Background()

	// Three enrichment cycles, each delivering one alias of the same
	// group, converge onto a single profile.
	st.addMention("Scattered Spider", "doc-1", t0)
	n, err := r.Resolve(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st.addMention("UNC3944", "doc-2", t0.Add(24*time.Hour))
	_, err = r.Resolve(ctx, 100)
	require.NoError(t, err)

	st.addMention("Roasted 0ktapus", "doc-3", t0.Add(48*time.Hour))
	_, err = r.Resolve(ctx, 100)
	require.NoError(t, err)

	live := st.liveProfiles()
	require.Len(t, live, 1)
	p := live[0]
	assert.Equal(t, "Scattered Spider", p.CanonicalName)
	assert.True(t, p.HasAlias("UNC3944"))
	assert.True(t, p.HasAlias("Roasted 0ktapus"))
	assert.Equal(t, 3, p.ArticleCount)

	// Every mention points at the surviving profile.
	for _, mention := range st.mentions {
		got, err := r.Profile(ctx, mention.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
}

func TestRegistryDistinctActorsStaySeparate(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	ctx := context.Background()

	st.addMention("Scattered Spider", "doc-1", t0)
	st.addMention("APT29", "doc-2", t0)
	_, err := r.Resolve(ctx, 100)
	require.NoError(t, err)

	assert.Len(t, st.liveProfiles(), 2)
}

func TestRegistryAggregatesProfile(t *testing.T) {
	st := newMemStore()
	st.techniques["doc-1"] = []model.TechniqueMention{
		{TechniqueID: "T1566", Tactic: "initial-access"},
		{TechniqueID: model.UnmappedTechniqueID, Name: "mystery"},
	}
	st.indicators["doc-1"] = []model.Indicator{
		{Type: model.IndicatorIP, Value: "203.0.113.5"},
		{Type: model.IndicatorHash, Value: "5d41402abc4b2a76b9719d911017c592"},
	}

	r := NewRegistry(st, DefaultAliasTable())
	st.addMention("Scattered Spider", "doc-1", t0)
	_, err := r.Resolve(context.Background(), 100)
	require.NoError(t, err)

	live := st.liveProfiles()
	require.Len(t, live, 1)
	assert.Equal(t, []string{"T1566"}, live[0].TTPs)
	// Hashes are not infrastructure.
	assert.Equal(t, []string{"203.0.113.5"}, live[0].Infrastructure)
}

func TestRegistryMergeKeepsEarlierProfile(t *testing.T) {
	st := newMemStore()
	// Empty alias table: the link between the names comes from MergeByName.
	r := NewRegistry(st, newAliasTable(nil))
	ctx := context.Background()

	st.addMention("Group Alpha", "doc-1", t0)
	st.addMention("Group Beta", "doc-2", t0.Add(time.Hour))
	_, err := r.Resolve(ctx, 100)
	require.NoError(t, err)
	require.Len(t, st.liveProfiles(), 2)

	survivorID, err := r.MergeByName(ctx, "Group Alpha", "Group Beta")
	require.NoError(t, err)

	live := st.liveProfiles()
	require.Len(t, live, 1)
	assert.Equal(t, survivorID, live[0].ID)
	assert.Equal(t, "Group Alpha", live[0].CanonicalName)
	assert.True(t, live[0].HasAlias("Group Beta"))

	// The losing profile redirects instead of disappearing.
	got, err := r.Profile(ctx, "Group Beta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, survivorID, got.ID)
}

func TestRegistryLoadRebuildsArena(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	ctx := context.Background()

	st.addMention("Scattered Spider", "doc-1", t0)
	_, err := r.Resolve(ctx, 100)
	require.NoError(t, err)

	fresh := NewRegistry(st, DefaultAliasTable())
	require.NoError(t, fresh.Load(ctx))

	st.addMention("UNC3944", "doc-2", t0.Add(time.Hour))
	_, err = fresh.Resolve(ctx, 100)
	require.NoError(t, err)

	assert.Len(t, st.liveProfiles(), 1)
}

func TestEnrichCycleRefreshesLastEnriched(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	e := NewEnricher(r, st, config.ActorsConfig{EnrichIntervalHours: 4}, nil)
	ctx := context.Background()

	st.addMention("Scattered Spider", "doc-1", t0)
	ran, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	live := st.liveProfiles()
	require.Len(t, live, 1)
	first := live[0].LastEnrichedAt
	assert.False(t, first.IsZero())

	// A later cycle with new material advances the timestamp.
	time.Sleep(time.Millisecond)
	st.addMention("UNC3944", "doc-2", t0.Add(time.Hour))
	_, err = e.RunOnce(ctx)
	require.NoError(t, err)

	live = st.liveProfiles()
	require.Len(t, live, 1)
	assert.True(t, live[0].LastEnrichedAt.After(first))
}

func TestEnricherSkipsWhenRunning(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	e := NewEnricher(r, st, config.ActorsConfig{EnrichIntervalHours: 4}, nil)

	e.running.Store(true)
	ran, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	e.running.Store(false)
	ran, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

type stubOracle struct {
	answer string
}

func (s *stubOracle) SuggestCanonical(_ context.Context, _ string, _ []string) (string, error) {
	return s.answer, nil
}

func TestEnricherModelAliasPass(t *testing.T) {
	st := newMemStore()
	r := NewRegistry(st, DefaultAliasTable())
	ctx := context.Background()

	st.addMention("Scattered Spider", "doc-1", t0)
	st.addMention("0ktapus Revival Crew", "doc-2", t0.Add(time.Hour))
	_, err := r.Resolve(ctx, 100)
	require.NoError(t, err)
	require.Len(t, st.liveProfiles(), 2)

	e := NewEnricher(r, st, config.ActorsConfig{EnrichIntervalHours: 4, ModelLookup: true},
		&stubOracle{answer: "Scattered Spider"})
	ran, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	assert.Len(t, st.liveProfiles(), 1)
}
