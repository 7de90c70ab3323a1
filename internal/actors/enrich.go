package actors

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
	"github.com/crestline-sec/intelpipe/pkg/anthropic"
)

const resolveBatchSize = 500

// AliasOracle suggests which known actor an unfamiliar name belongs to.
// Its answer is advisory and only acted on when it names a profile we
// already hold.
type AliasOracle interface {
	SuggestCanonical(ctx context.Context, name string, known []string) (string, error)
}

// Enricher runs the periodic profile enrichment cycle: resolve outstanding
// mentions, then optionally consult the alias oracle for names the curated
// table does not know. A cycle that is still running when the next tick
// fires is skipped, never stacked.
type Enricher struct {
	registry *Registry
	store    Store
	cfg      config.ActorsConfig
	oracle   AliasOracle
	running  atomic.Bool
}

func NewEnricher(registry *Registry, st Store, cfg config.ActorsConfig, oracle AliasOracle) *Enricher {
	return &Enricher{registry: registry, store: st, cfg: cfg, oracle: oracle}
}

// RunOnce executes a single enrichment cycle. Returns false when a previous
// cycle is still running and this one was skipped.
func (e *Enricher) RunOnce(ctx context.Context) (bool, error) {
	if !e.running.CompareAndSwap(false, true) {
		zap.L().Info("actors: enrichment cycle already running, skipping")
		return false, nil
	}
	defer e.running.Store(false)

	resolved, err := e.registry.Resolve(ctx, resolveBatchSize)
	if err != nil {
		e.auditFailure(ctx, err)
		return true, eris.Wrap(err, "actors: enrich resolve")
	}
	zap.L().Info("actors: enrichment cycle resolved mentions", zap.Int("count", resolved))

	if e.cfg.ModelLookup && e.oracle != nil {
		if err := e.modelAliasPass(ctx); err != nil {
			e.auditFailure(ctx, err)
			return true, eris.Wrap(err, "actors: model alias pass")
		}
	}
	return true, nil
}

// Watch runs enrichment cycles on the configured interval until ctx is
// canceled. The first cycle runs immediately.
func (e *Enricher) Watch(ctx context.Context) error {
	interval := time.Duration(e.cfg.EnrichIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 4 * time.Hour
	}

	if _, err := e.RunOnce(ctx); err != nil {
		zap.L().Error("actors: enrichment cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				zap.L().Error("actors: enrichment cycle failed", zap.Error(err))
			}
		}
	}
}

// modelAliasPass asks the oracle about profiles that have a single known
// name and no curated group, and merges when the answer names a profile we
// already track.
func (e *Enricher) modelAliasPass(ctx context.Context) error {
	profiles, err := e.store.ListProfiles(ctx)
	if err != nil {
		return eris.Wrap(err, "list profiles")
	}

	known := make([]string, 0, len(profiles))
	byName := make(map[string]*model.ThreatActorProfile)
	for i := range profiles {
		p := &profiles[i]
		if p.MergedInto != "" {
			continue
		}
		known = append(known, p.CanonicalName)
		byName[model.NormalizeText(p.CanonicalName)] = p
	}

	for i := range profiles {
		p := &profiles[i]
		if p.MergedInto != "" || len(p.Aliases) > 1 {
			continue
		}
		if e.registry.aliases.Group(p.CanonicalName) != nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		suggestion, err := e.oracle.SuggestCanonical(ctx, p.CanonicalName, known)
		if err != nil {
			zap.L().Warn("actors: alias oracle failed",
				zap.String("name", p.CanonicalName), zap.Error(err))
			continue
		}
		target, ok := byName[model.NormalizeText(suggestion)]
		if !ok || target.ID == p.ID {
			continue
		}
		if _, err := e.registry.MergeByName(ctx, p.CanonicalName, target.CanonicalName); err != nil {
			zap.L().Warn("actors: oracle-suggested merge failed",
				zap.String("name", p.CanonicalName),
				zap.String("target", target.CanonicalName),
				zap.Error(err))
		}
	}
	return nil
}

func (e *Enricher) auditFailure(ctx context.Context, cause error) {
	err := e.store.RecordAudit(ctx, model.AuditEvent{
		Reason: model.AuditEnrichFailed,
		Detail: cause.Error(),
	})
	if err != nil {
		zap.L().Warn("actors: enrich failure audit write failed", zap.Error(err))
	}
}

// modelOracle implements AliasOracle on the model client.
type modelOracle struct {
	client anthropic.Client
	model  string
}

func NewModelOracle(client anthropic.Client, modelName string) AliasOracle {
	return &modelOracle{client: client, model: modelName}
}

func (o *modelOracle) SuggestCanonical(ctx context.Context, name string, known []string) (string, error) {
	temp := 0.0
	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   64,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role: "user",
			Content: "Is the threat actor name \"" + name + "\" a known alias of any of these tracked actors: " +
				strings.Join(known, ", ") + "? Reply with exactly one name from the list, or NONE.",
		}},
	})
	if err != nil {
		return "", eris.Wrap(err, "actors: oracle call")
	}
	answer := strings.TrimSpace(resp.Text())
	if strings.EqualFold(answer, "NONE") {
		return "", nil
	}
	return answer, nil
}
