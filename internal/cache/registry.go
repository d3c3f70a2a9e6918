package cache

import (
	"context"
	"sort"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
)

// Family names, one cache per operator family.
const (
	FamilyFact         = "fact"
	FamilyEntity       = "entity"
	FamilyCitation     = "citation"
	FamilySourceRating = "source_rating"
	FamilyConflict     = "conflict"
)

// Registry owns the five family caches and the expiry sweeper. The server
// constructs one registry and passes it into the operators that cache.
type Registry struct {
	caches   map[string]*Cache
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRegistry builds the family caches from configuration.
func NewRegistry(cfg *config.Config) *Registry {
	cc := cfg.Cache
	return &Registry{
		interval: cfg.SweepInterval(),
		caches: map[string]*Cache{
			FamilyFact:         New(FamilyFact, cc.Fact.GetTTL(10*time.Minute), cc.Fact.MaxEntries),
			FamilyEntity:       New(FamilyEntity, cc.Entity.GetTTL(10*time.Minute), cc.Entity.MaxEntries),
			FamilyCitation:     New(FamilyCitation, cc.Citation.GetTTL(30*time.Minute), cc.Citation.MaxEntries),
			FamilySourceRating: New(FamilySourceRating, cc.SourceRating.GetTTL(60*time.Minute), cc.SourceRating.MaxEntries),
			FamilyConflict:     New(FamilyConflict, cc.Conflict.GetTTL(5*time.Minute), cc.Conflict.MaxEntries),
		},
	}
}

// Family returns the named cache, or nil for an unknown family.
func (r *Registry) Family(name string) *Cache {
	return r.caches[name]
}

// Retune applies reloaded TTLs to the family caches. Entry contents and
// capacities are untouched; new TTLs govern entries stored from now on and
// the expiry checks of existing ones.
func (r *Registry) Retune(cfg *config.Config) {
	cc := cfg.Cache
	r.caches[FamilyFact].SetTTL(cc.Fact.GetTTL(10 * time.Minute))
	r.caches[FamilyEntity].SetTTL(cc.Entity.GetTTL(10 * time.Minute))
	r.caches[FamilyCitation].SetTTL(cc.Citation.GetTTL(30 * time.Minute))
	r.caches[FamilySourceRating].SetTTL(cc.SourceRating.GetTTL(60 * time.Minute))
	r.caches[FamilyConflict].SetTTL(cc.Conflict.GetTTL(5 * time.Minute))
}

// Families lists the family names in stable order.
func (r *Registry) Families() []string {
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the expiry sweeper. Stop ends it and waits for exit.
func (r *Registry) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.sweep(ctx)
}

// Stop halts the sweeper. Safe to call without Start.
func (r *Registry) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Registry) sweep(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := 0
			for _, name := range r.Families() {
				removed += r.caches[name].Sweep(now)
			}
			if removed > 0 {
				logging.Cache().Debugf("sweep removed %d expired entries", removed)
			}
		}
	}
}

// Stats reports every family's counters keyed by family name.
func (r *Registry) Stats() map[string]Stats {
	out := make(map[string]Stats, len(r.caches))
	for name, c := range r.caches {
		out[name] = c.Stats()
	}
	return out
}

// Clear empties the named family, or every family when name is empty.
// It returns removed-entry counts keyed by family.
func (r *Registry) Clear(name string) map[string]int {
	out := map[string]int{}
	if name != "" {
		if c := r.caches[name]; c != nil {
			out[name] = c.Clear()
		}
		return out
	}
	for _, fam := range r.Families() {
		out[fam] = r.caches[fam].Clear()
	}
	return out
}
