package actors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// Store is the slice of the persistence layer the registry needs.
type Store interface {
	ListUnresolvedMentions(ctx context.Context, limit int) ([]model.ActorMention, error)
	AssignMentionProfile(ctx context.Context, mentionID, profileID string) error
	SaveProfile(ctx context.Context, p *model.ThreatActorProfile) error
	GetProfile(ctx context.Context, id string) (*model.ThreatActorProfile, error)
	ListProfiles(ctx context.Context) ([]model.ThreatActorProfile, error)
	ListTechniquesByDocument(ctx context.Context, documentID string) ([]model.TechniqueMention, error)
	ListIndicatorsByDocument(ctx context.Context, documentID string) ([]model.Indicator, error)
	RecordAudit(ctx context.Context, event model.AuditEvent) error
}

// Registry resolves actor mentions to canonical profiles. Names that the
// curated alias table or later reporting reveal to be the same group
// converge onto one profile; the losing profile is never deleted, it is
// redirected via MergedInto.
//
// The in-memory arena is rebuilt from stored profiles at startup; the
// stored alias lists and mention assignments are its durable form.
type Registry struct {
	mu      sync.Mutex
	store   Store
	aliases *AliasTable

	uf    *unionFind
	names []string       // arena handle -> original name
	index map[string]int // normalized name -> arena handle
	// profileByRoot maps a set's current root to its profile id.
	profileByRoot map[int]string
}

func NewRegistry(st Store, aliases *AliasTable) *Registry {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	return &Registry{
		store:         st,
		aliases:       aliases,
		uf:            newUnionFind(),
		index:         make(map[string]int),
		profileByRoot: make(map[int]string),
	}
}

// Load rebuilds the arena from stored profiles. Call once before resolving.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.store.ListProfiles(ctx)
	if err != nil {
		return eris.Wrap(err, "actors: load profiles")
	}
	for i := range profiles {
		p := &profiles[i]
		if p.MergedInto != "" {
			continue
		}
		root := -1
		for _, name := range append([]string{p.CanonicalName}, p.Aliases...) {
			h := r.handle(name)
			if root < 0 {
				root = r.uf.find(h)
			} else {
				root = r.uf.union(root, h)
			}
		}
		if root >= 0 {
			r.profileByRoot[root] = p.ID
		}
	}
	return nil
}

// Resolve assigns every unresolved mention to a profile, creating and
// merging profiles as names converge. It returns the number of mentions
// resolved.
func (r *Registry) Resolve(ctx context.Context, limit int) (int, error) {
	mentions, err := r.store.ListUnresolvedMentions(ctx, limit)
	if err != nil {
		return 0, eris.Wrap(err, "actors: list unresolved mentions")
	}

	resolved := 0
	for _, mention := range mentions {
		if ctx.Err() != nil {
			return resolved, eris.Wrap(ctx.Err(), "actors: resolve canceled")
		}
		if err := r.resolveOne(ctx, mention); err != nil {
			// A single bad mention must not wedge the rest of the batch.
			zap.L().Warn("actors: mention resolution failed",
				zap.String("mention_id", mention.ID),
				zap.String("name", mention.Name),
				zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (r *Registry) resolveOne(ctx context.Context, mention model.ActorMention) error {
	r.mu.Lock()
	profileID, err := r.profileFor(ctx, mention.Name, mention.SeenAt)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.store.AssignMentionProfile(ctx, mention.ID, profileID); err != nil {
		return err
	}
	return r.aggregate(ctx, profileID, mention)
}

// profileFor finds or creates the profile for a name, joining it with its
// curated alias group. Caller holds the lock.
func (r *Registry) profileFor(ctx context.Context, name string, seenAt time.Time) (string, error) {
	h := r.handle(name)
	root := r.uf.find(h)

	// Fold in the curated alias group so every known name of the group
	// lands in the same set.
	if g := r.aliases.Group(name); g != nil {
		for _, alias := range g.AllNames() {
			root = r.uf.union(root, r.handle(alias))
		}
	}
	root = r.collapseProfiles(ctx, root)

	if id, ok := r.profileByRoot[root]; ok {
		return id, nil
	}

	// First sighting of this group: create the profile.
	canonical := name
	if g := r.aliases.Group(name); g != nil {
		canonical = g.Canonical
	}
	p := &model.ThreatActorProfile{
		CanonicalName: canonical,
		Aliases:       r.componentNames(root),
		FirstSeen:     seenAt,
		LastSeen:      seenAt,
	}
	if err := r.store.SaveProfile(ctx, p); err != nil {
		return "", eris.Wrap(err, "actors: create profile")
	}
	r.profileByRoot[root] = p.ID
	return p.ID, nil
}

// collapseProfiles merges any profiles whose sets were just unified under
// root. The earlier-created profile survives. Caller holds the lock.
func (r *Registry) collapseProfiles(ctx context.Context, root int) int {
	// Collect the distinct profile ids now living under root.
	var ids []string
	seen := make(map[string]bool)
	for old, id := range r.profileByRoot {
		if r.uf.find(old) == root && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) <= 1 {
		// Re-key the surviving entry under the current root.
		if len(ids) == 1 {
			r.rekeyRoot(root, ids[0])
		}
		return root
	}

	profiles := make([]*model.ThreatActorProfile, 0, len(ids))
	for _, id := range ids {
		p, err := r.store.GetProfile(ctx, id)
		if err != nil || p == nil {
			zap.L().Warn("actors: profile fetch during merge failed", zap.String("profile_id", id), zap.Error(err))
			continue
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return root
	}

	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].FirstSeen.Equal(profiles[j].FirstSeen) {
			return profiles[i].FirstSeen.Before(profiles[j].FirstSeen)
		}
		return profiles[i].ID < profiles[j].ID
	})

	winner := profiles[0]
	for _, loser := range profiles[1:] {
		winner.Aliases = mergeNames(winner.Aliases, append([]string{loser.CanonicalName}, loser.Aliases...))
		winner.TTPs = mergeNames(winner.TTPs, loser.TTPs)
		winner.Infrastructure = mergeNames(winner.Infrastructure, loser.Infrastructure)
		winner.TargetSectors = mergeNames(winner.TargetSectors, loser.TargetSectors)
		winner.ArticleCount += loser.ArticleCount
		if loser.LastSeen.After(winner.LastSeen) {
			winner.LastSeen = loser.LastSeen
		}

		loser.MergedInto = winner.ID
		if err := r.store.SaveProfile(ctx, loser); err != nil {
			zap.L().Warn("actors: redirect save failed", zap.String("profile_id", loser.ID), zap.Error(err))
		}
	}
	winner.Aliases = mergeNames(winner.Aliases, r.componentNames(root))
	winner.LastEnrichedAt = time.Now().UTC()
	if err := r.store.SaveProfile(ctx, winner); err != nil {
		zap.L().Warn("actors: merged profile save failed", zap.String("profile_id", winner.ID), zap.Error(err))
	}

	r.rekeyRoot(root, winner.ID)
	return root
}

// rekeyRoot drops stale root entries for a set and records the current one.
func (r *Registry) rekeyRoot(root int, profileID string) {
	for old := range r.profileByRoot {
		if old != root && r.uf.find(old) == root {
			delete(r.profileByRoot, old)
		}
	}
	r.profileByRoot[root] = profileID
}

// aggregate folds the document's extracted techniques and infrastructure
// into the mention's profile.
func (r *Registry) aggregate(ctx context.Context, profileID string, mention model.ActorMention) error {
	p, err := r.store.GetProfile(ctx, profileID)
	if err != nil {
		return eris.Wrap(err, "actors: fetch profile")
	}
	if p == nil {
		return eris.Errorf("actors: profile vanished: %s", profileID)
	}

	techniques, err := r.store.ListTechniquesByDocument(ctx, mention.DocumentID)
	if err != nil {
		return eris.Wrap(err, "actors: list document techniques")
	}
	for _, t := range techniques {
		if t.TechniqueID != model.UnmappedTechniqueID {
			p.TTPs = mergeNames(p.TTPs, []string{t.TechniqueID})
		}
	}

	indicators, err := r.store.ListIndicatorsByDocument(ctx, mention.DocumentID)
	if err != nil {
		return eris.Wrap(err, "actors: list document indicators")
	}
	for _, ind := range indicators {
		switch ind.Type {
		case model.IndicatorIP, model.IndicatorIPv6, model.IndicatorDomain, model.IndicatorURL:
			p.Infrastructure = mergeNames(p.Infrastructure, []string{ind.Value})
		}
	}

	p.ArticleCount++
	if p.FirstSeen.IsZero() || mention.SeenAt.Before(p.FirstSeen) {
		p.FirstSeen = mention.SeenAt
	}
	if mention.SeenAt.After(p.LastSeen) {
		p.LastSeen = mention.SeenAt
	}
	p.LastEnrichedAt = time.Now().UTC()

	return eris.Wrap(r.store.SaveProfile(ctx, p), "actors: save aggregated profile")
}

// MergeByName records that two names refer to the same actor and collapses
// their profiles. Returns the surviving profile id.
func (r *Registry) MergeByName(ctx context.Context, a, b string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := r.uf.union(r.uf.find(r.handle(a)), r.uf.find(r.handle(b)))
	root = r.collapseProfiles(ctx, root)
	id, ok := r.profileByRoot[root]
	if !ok {
		return "", eris.Errorf("actors: no profile for merged set %s / %s", a, b)
	}
	return id, nil
}

// Profile returns the live profile for an id or actor name, following
// merge redirects.
func (r *Registry) Profile(ctx context.Context, idOrName string) (*model.ThreatActorProfile, error) {
	p, err := r.store.GetProfile(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p, err = r.profileByName(ctx, idOrName)
		if err != nil || p == nil {
			return p, err
		}
	}

	// Follow the redirect chain to the surviving profile.
	for p.MergedInto != "" {
		next, err := r.store.GetProfile(ctx, p.MergedInto)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return p, nil
		}
		p = next
	}
	return p, nil
}

func (r *Registry) profileByName(ctx context.Context, name string) (*model.ThreatActorProfile, error) {
	r.mu.Lock()
	h, ok := r.index[model.NormalizeText(name)]
	var id string
	if ok {
		id = r.profileByRoot[r.uf.find(h)]
	}
	r.mu.Unlock()

	if id == "" {
		// Fall back to a store scan for names seen before this process
		// started.
		profiles, err := r.store.ListProfiles(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "actors: list profiles")
		}
		for i := range profiles {
			if profiles[i].HasAlias(name) {
				return &profiles[i], nil
			}
		}
		return nil, nil
	}
	return r.store.GetProfile(ctx, id)
}

// handle returns the arena handle for a name, allocating on first use.
// Caller holds the lock.
func (r *Registry) handle(name string) int {
	key := model.NormalizeText(name)
	if h, ok := r.index[key]; ok {
		return h
	}
	h := r.uf.add()
	r.index[key] = h
	r.names = append(r.names, name)
	return h
}

// componentNames lists the original names in root's set. Caller holds the
// lock.
func (r *Registry) componentNames(root int) []string {
	var out []string
	for h, name := range r.names {
		if r.uf.find(h) == root {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// mergeNames unions two string slices preserving first-seen order of a.
func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := a
	for _, s := range a {
		seen[model.NormalizeText(s)] = true
	}
	for _, s := range b {
		key := model.NormalizeText(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}
