package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
)

type fakeStore struct {
	occurrences []model.IndicatorOccurrence
	cached      map[string]*model.CorrelationReport
	listCalls   int
}

func (f *fakeStore) ListOccurrences(_ context.Context, _, _ time.Time) ([]model.IndicatorOccurrence, error) {
	f.listCalls++
	return f.occurrences, nil
}

func (f *fakeStore) GetCachedReport(_ context.Context, key string) (*model.CorrelationReport, error) {
	if f.cached == nil {
		return nil, nil
	}
	return f.cached[key], nil
}

func (f *fakeStore) SetCachedReport(_ context.Context, key string, report *model.CorrelationReport, _ time.Duration) error {
	if f.cached == nil {
		f.cached = make(map[string]*model.CorrelationReport)
	}
	f.cached[key] = report
	return nil
}

func occ(typ model.IndicatorType, value, docID string) model.IndicatorOccurrence {
	return model.IndicatorOccurrence{
		IndicatorID: string(typ) + ":" + value,
		Type:        typ,
		Value:       value,
		DocumentID:  docID,
		SeenAt:      time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

var (
	windowStart = time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
)

func TestSharedLinksRequireTwoDocuments(t *testing.T) {
	fs := &fakeStore{occurrences: []model.IndicatorOccurrence{
		occ(model.IndicatorIP, "203.0.113.5", "a"),
		occ(model.IndicatorIP, "203.0.113.5", "b"),
		occ(model.IndicatorDomain, "lonely.example.net", "a"),
	}}
	e := NewEngine(fs, config.CorrelateConfig{ClusterThreshold: 3, CacheTTLHours: 1})

	report, err := e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, report.SharedIndicators, 1)
	assert.Equal(t, "203.0.113.5", report.SharedIndicators[0].Value)
	assert.Equal(t, []string{"a", "b"}, report.SharedIndicators[0].DocumentIDs)
}

func TestClusterThreshold(t *testing.T) {
	// A and B share 2 indicators (below threshold); B and C share 4
	// (above). Only B-C clusters.
	var occurrences []model.IndicatorOccurrence
	shared := func(value string, docs ...string) {
		for _, d := range docs {
			occurrences = append(occurrences, occ(model.IndicatorDomain, value, d))
		}
	}
	shared("ab-one.example.net", "A", "B")
	shared("ab-two.example.net", "A", "B")
	shared("bc-one.example.net", "B", "C")
	shared("bc-two.example.net", "B", "C")
	shared("bc-three.example.net", "B", "C")
	shared("bc-four.example.net", "B", "C")

	fs := &fakeStore{occurrences: occurrences}
	e := NewEngine(fs, config.CorrelateConfig{ClusterThreshold: 3, CacheTTLHours: 1})

	report, err := e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"B", "C"}, report.Clusters[0].DocumentIDs)
	assert.Equal(t, 1, report.Clusters[0].EdgeCount)
	// The weak A-B pair still shows up as shared links.
	assert.Len(t, report.SharedIndicators, 6)
}

func TestClusterTransitiveComponent(t *testing.T) {
	var occurrences []model.IndicatorOccurrence
	shared := func(value string, docs ...string) {
		for _, d := range docs {
			occurrences = append(occurrences, occ(model.IndicatorHash, value, d))
		}
	}
	// A-B and B-C both meet the threshold; A, B, C form one component
	// even though A and C share nothing directly.
	for _, v := range []string{"h1", "h2", "h3"} {
		shared(v, "A", "B")
	}
	for _, v := range []string{"h4", "h5", "h6"} {
		shared(v, "B", "C")
	}

	fs := &fakeStore{occurrences: occurrences}
	e := NewEngine(fs, config.CorrelateConfig{ClusterThreshold: 3, CacheTTLHours: 1})

	report, err := e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"A", "B", "C"}, report.Clusters[0].DocumentIDs)
	assert.Equal(t, 2, report.Clusters[0].EdgeCount)
}

func TestReportServedFromCache(t *testing.T) {
	fs := &fakeStore{occurrences: []model.IndicatorOccurrence{
		occ(model.IndicatorIP, "203.0.113.5", "a"),
		occ(model.IndicatorIP, "203.0.113.5", "b"),
	}}
	e := NewEngine(fs, config.CorrelateConfig{ClusterThreshold: 3, CacheTTLHours: 1})

	_, err := e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	_, err = e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)

	assert.Equal(t, 1, fs.listCalls)
}

func TestReportEmptyWindow(t *testing.T) {
	fs := &fakeStore{}
	e := NewEngine(fs, config.CorrelateConfig{ClusterThreshold: 3, CacheTTLHours: 1})

	report, err := e.Report(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, report.SharedIndicators)
	assert.Empty(t, report.Clusters)
}
