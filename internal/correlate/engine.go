// Package correlate derives shared-indicator links and document clusters
// from indicator occurrences. Everything it produces is regenerable
// advisory state, cached with a TTL and never treated as authoritative.
package correlate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
)

// Store is the slice of the persistence layer the engine needs.
type Store interface {
	ListOccurrences(ctx context.Context, from, to time.Time) ([]model.IndicatorOccurrence, error)
	GetCachedReport(ctx context.Context, key string) (*model.CorrelationReport, error)
	SetCachedReport(ctx context.Context, key string, report *model.CorrelationReport, ttl time.Duration) error
}

// Engine computes correlation reports over a time window.
type Engine struct {
	store Store
	cfg   config.CorrelateConfig
}

func NewEngine(st Store, cfg config.CorrelateConfig) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// Report returns the correlation report for [from, to), serving a cached
// copy when one is still fresh.
func (e *Engine) Report(ctx context.Context, from, to time.Time) (*model.CorrelationReport, error) {
	key := cacheKey(from, to)
	if cached, err := e.store.GetCachedReport(ctx, key); err != nil {
		zap.L().Warn("correlate: cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	report, err := e.compute(ctx, from, to)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(e.cfg.CacheTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := e.store.SetCachedReport(ctx, key, report, ttl); err != nil {
		zap.L().Warn("correlate: cache write failed", zap.Error(err))
	}
	return report, nil
}

// compute builds the report from scratch: group occurrences by indicator,
// derive shared links, weight document pairs by shared-indicator count, and
// take connected components over pairs that meet the cluster threshold.
func (e *Engine) compute(ctx context.Context, from, to time.Time) (*model.CorrelationReport, error) {
	occurrences, err := e.store.ListOccurrences(ctx, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "correlate: list occurrences")
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "correlate: canceled")
	}

	links := sharedLinks(occurrences)
	clusters := clusterDocuments(links, e.threshold())

	return &model.CorrelationReport{
		WindowStart:      from.UTC(),
		WindowEnd:        to.UTC(),
		SharedIndicators: links,
		Clusters:         clusters,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

func (e *Engine) threshold() int {
	if e.cfg.ClusterThreshold > 0 {
		return e.cfg.ClusterThreshold
	}
	return 3
}

// sharedLinks groups occurrences by (type, value) and keeps every indicator
// referenced by two or more documents.
func sharedLinks(occurrences []model.IndicatorOccurrence) []model.SharedIndicatorLink {
	type group struct {
		typ  model.IndicatorType
		val  string
		docs map[string]bool
	}
	groups := make(map[string]*group)
	for _, o := range occurrences {
		key := string(o.Type) + ":" + o.Value
		g, ok := groups[key]
		if !ok {
			g = &group{typ: o.Type, val: o.Value, docs: make(map[string]bool)}
			groups[key] = g
		}
		g.docs[o.DocumentID] = true
	}

	var links []model.SharedIndicatorLink
	for _, g := range groups {
		if len(g.docs) < 2 {
			continue
		}
		docs := make([]string, 0, len(g.docs))
		for id := range g.docs {
			docs = append(docs, id)
		}
		sort.Strings(docs)
		links = append(links, model.SharedIndicatorLink{Type: g.typ, Value: g.val, DocumentIDs: docs})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Type != links[j].Type {
			return links[i].Type < links[j].Type
		}
		return links[i].Value < links[j].Value
	})
	return links
}

// clusterDocuments builds a graph whose edges are document pairs sharing at
// least threshold indicators, then returns its connected components.
func clusterDocuments(links []model.SharedIndicatorLink, threshold int) []model.CorrelationCluster {
	// Count shared indicators per document pair.
	pairWeight := make(map[[2]string]int)
	for _, link := range links {
		for i := 0; i < len(link.DocumentIDs); i++ {
			for j := i + 1; j < len(link.DocumentIDs); j++ {
				pair := [2]string{link.DocumentIDs[i], link.DocumentIDs[j]}
				pairWeight[pair]++
			}
		}
	}

	adjacency := make(map[string][]string)
	edges := 0
	for pair, weight := range pairWeight {
		if weight < threshold {
			continue
		}
		adjacency[pair[0]] = append(adjacency[pair[0]], pair[1])
		adjacency[pair[1]] = append(adjacency[pair[1]], pair[0])
		edges++
	}
	if edges == 0 {
		return nil
	}

	// Connected components by iterative depth-first walk.
	visited := make(map[string]bool)
	var clusters []model.CorrelationCluster

	nodes := make([]string, 0, len(adjacency))
	for n := range adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, start := range nodes {
		if visited[start] {
			continue
		}
		var component []string
		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, n)
			for _, next := range adjacency[n] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Strings(component)

		edgeCount := 0
		inComponent := make(map[string]bool, len(component))
		for _, n := range component {
			inComponent[n] = true
		}
		for pair, weight := range pairWeight {
			if weight >= threshold && inComponent[pair[0]] && inComponent[pair[1]] {
				edgeCount++
			}
		}

		clusters = append(clusters, model.CorrelationCluster{
			ID:          "cluster-" + component[0],
			DocumentIDs: component,
			EdgeCount:   edgeCount,
		})
	}
	return clusters
}

func cacheKey(from, to time.Time) string {
	return fmt.Sprintf("window:%d:%d", from.UTC().Unix(), to.UTC().Unix())
}
