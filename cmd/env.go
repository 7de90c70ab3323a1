package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/actors"
	"github.com/crestline-sec/intelpipe/internal/correlate"
	"github.com/crestline-sec/intelpipe/internal/dedup"
	"github.com/crestline-sec/intelpipe/internal/extract"
	"github.com/crestline-sec/intelpipe/internal/pipeline"
	"github.com/crestline-sec/intelpipe/internal/store"
	"github.com/crestline-sec/intelpipe/internal/taxonomy"
	anthropicpkg "github.com/crestline-sec/intelpipe/pkg/anthropic"
)

// pipelineEnv holds the initialized store and every engine the commands
// share. Callers defer env.Close().
type pipelineEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Correlate *correlate.Engine
	Registry  *actors.Registry
	Enricher  *actors.Enricher
}

func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initEnv sets up the store, runs migrations, and wires the dedup gate,
// extraction orchestrator, correlation engine, and actor registry.
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	aliases, err := loadAliases()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mapper := taxonomy.NewMapper()
	pattern := extract.NewPatternExtractor(aliases.Names(), mapper.Keywords())
	resolver := extract.NewResolver(cfg.Extract.MaxEvidenceChars)

	var anthClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		anthClient = anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSec)
		zap.L().Info("model-assisted extraction enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("INTELPIPE_ANTHROPIC_KEY not set, model-assisted extraction disabled")
	}

	var orch *extract.Orchestrator
	if anthClient != nil {
		modelExt := extract.NewModelExtractor(anthClient, cfg.Extract, cfg.Anthropic)
		orch = extract.NewOrchestrator(pattern, modelExt, resolver, st)
	} else {
		orch = extract.NewOrchestrator(pattern, nil, resolver, st)
	}

	gate := dedup.NewGate(st, cfg.Dedup)
	registry := actors.NewRegistry(st, aliases)
	if err := registry.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	var oracle actors.AliasOracle
	if cfg.Actors.ModelLookup && anthClient != nil {
		oracle = actors.NewModelOracle(anthClient, cfg.Anthropic.Model)
	}

	return &pipelineEnv{
		Store:     st,
		Pipeline:  pipeline.New(st, gate, orch, mapper),
		Correlate: correlate.NewEngine(st, cfg.Correlate),
		Registry:  registry,
		Enricher:  actors.NewEnricher(registry, st, cfg.Actors, oracle),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func loadAliases() (*actors.AliasTable, error) {
	if cfg.Actors.AliasTablePath == "" {
		return actors.DefaultAliasTable(), nil
	}
	return actors.LoadAliasTable(cfg.Actors.AliasTablePath)
}
