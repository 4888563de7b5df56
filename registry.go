package ratelimit

import (
	"math"
	"net/netip"
	"sync"
	"sync/atomic"
)

// ProviderId is a unique identifier for a registered provider.
type ProviderId uint64

// ProviderHandle is returned when registering a provider.
// Use it to unregister the provider later.
type ProviderHandle struct {
	id       ProviderId
	registry *LimiterRegistry
}

// Unregister removes this provider from the registry.
func (h *ProviderHandle) Unregister() {
	if h.registry != nil {
		h.registry.Unregister(*h)
	}
}

type providerEntry struct {
	rules []*Rule
}

// limiterEntry pairs a built limiter with the rule it was built from.
// Comparing rules on rebuild lets unchanged limiters keep their state.
type limiterEntry struct {
	rule   Rule
	fair   *Limiter[netip.Addr]
	simple *SimpleLimiter
}

// LimiterRegistry manages named limiters built from rules supplied by one or
// more providers. When rules change, only the limiters whose rules actually
// changed are rebuilt; the rest keep their windows and tracked sources.
type LimiterRegistry struct {
	mu        sync.RWMutex
	nextId    atomic.Uint64
	providers map[ProviderId]*providerEntry
	stats     map[string]*LimiterStats
	limiters  map[string]*limiterEntry
	onRebuild func() // for testing
	onError   func(error)
}

// NewLimiterRegistry creates a new LimiterRegistry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{
		providers: make(map[ProviderId]*providerEntry),
		stats:     make(map[string]*LimiterStats),
		limiters:  make(map[string]*limiterEntry),
	}
}

// Register adds a provider to the registry.
// The provider's rules are loaded immediately and limiters are built.
func (r *LimiterRegistry) Register(provider RuleProvider) (ProviderHandle, error) {
	id := ProviderId(r.nextId.Add(1))

	// Wire up stats collection
	provider.SetStatsCollector(r.CollectStats)

	// Subscribe to rule updates
	err := provider.Subscribe(func(rules []*Rule) {
		r.onProviderUpdate(id, rules)
	})
	if err != nil {
		return ProviderHandle{}, err
	}

	return ProviderHandle{id: id, registry: r}, nil
}

// Unregister removes a provider from the registry.
func (r *LimiterRegistry) Unregister(handle ProviderHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.providers, handle.id)
	r.rebuildLocked()
}

// Limiter returns the fair limiter with the given rule ID.
func (r *LimiterRegistry) Limiter(id string) (*Limiter[netip.Addr], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.limiters[id]
	if !ok || entry.fair == nil {
		return nil, false
	}
	return entry.fair, true
}

// SimpleLimiter returns the simple limiter with the given rule ID.
func (r *LimiterRegistry) SimpleLimiter(id string) (*SimpleLimiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.limiters[id]
	if !ok || entry.simple == nil {
		return nil, false
	}
	return entry.simple, true
}

// Allow checks a request against the limiter with the given rule ID,
// deriving the key from the source address per the rule's key kind.
// Unknown IDs accept, so removing a rule opens the tap rather than
// breaking the caller.
func (r *LimiterRegistry) Allow(id string, addr netip.Addr, cost uint32) bool {
	r.mu.RLock()
	entry, ok := r.limiters[id]
	r.mu.RUnlock()

	if !ok {
		return true
	}
	if entry.simple != nil {
		return entry.simple.Allow(cost)
	}
	key := IPKey(addr)
	if entry.rule.Key == KeySubnet {
		key = SubnetKey(addr)
	}
	return entry.fair.Allow(key, cost)
}

// CollectStats returns immutable snapshots of stats for all limiters.
// This is the StatsCollector implementation that gets registered with providers.
func (r *LimiterRegistry) CollectStats() []LimiterStatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]LimiterStatsSnapshot, 0, len(r.stats))
	for id, stats := range r.stats {
		snapshots = append(snapshots, stats.Snapshot(id))
	}
	return snapshots
}

// SetOnRebuild sets a callback that is invoked after limiters are rebuilt.
// Used for testing to know when rules have been applied.
func (r *LimiterRegistry) SetOnRebuild(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRebuild = fn
}

// SetOnError sets a callback invoked when a rule cannot be built into a
// limiter. The rule is skipped; other rules are unaffected.
func (r *LimiterRegistry) SetOnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

func (r *LimiterRegistry) onProviderUpdate(id ProviderId, rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[id] = &providerEntry{
		rules: rules,
	}
	r.rebuildLocked()
}

// rebuildLocked rebuilds the named limiter set from all providers' rules.
// INVARIANT: the write lock MUST be held.
func (r *LimiterRegistry) rebuildLocked() {
	// Collect all rules from all providers. The first rule wins when two
	// providers use the same ID.
	byID := make(map[string]*Rule)
	for _, entry := range r.providers {
		for _, rule := range entry.rules {
			if _, ok := byID[rule.ID]; !ok {
				byID[rule.ID] = rule
			}
		}
	}

	next := make(map[string]*limiterEntry, len(byID))
	for id, rule := range byID {
		// Keep the existing limiter, and its state, when the rule is
		// unchanged.
		if existing, ok := r.limiters[id]; ok && existing.rule == *rule {
			next[id] = existing
			continue
		}

		stats, ok := r.stats[id]
		if !ok {
			stats = &LimiterStats{}
			r.stats[id] = stats
		}

		entry, err := buildLimiter(rule, stats)
		if err != nil {
			if r.onError != nil {
				r.onError(WrapError(ErrInvalidRule, "cannot build limiter "+id, err))
			}
			continue
		}
		next[id] = entry
	}
	r.limiters = next

	// Drop stats for rules that no longer exist.
	for id := range r.stats {
		if _, ok := next[id]; !ok {
			delete(r.stats, id)
		}
	}

	if r.onRebuild != nil {
		r.onRebuild()
	}
}

// buildLimiter constructs the limiter described by a rule.
func buildLimiter(rule *Rule, stats *LimiterStats) (*limiterEntry, error) {
	opts := []Option{
		WithTickDuration(rule.TickDuration),
		WithStats(stats),
	}

	if rule.Mode == ModeSimple {
		var simple *SimpleLimiter
		var err error
		if rule.Custom {
			simple, err = NewSimple(sumBudgets(rule.TrackedPerTick, rule.UntrackedPerTick), opts...)
		} else {
			simple, err = NewSimpleForRate(rule.MaxCostPerSec, opts...)
		}
		if err != nil {
			return nil, err
		}
		return &limiterEntry{rule: *rule, simple: simple}, nil
	}

	opts = append(opts, WithMaxKeys(rule.MaxKeys))
	var fair *Limiter[netip.Addr]
	var err error
	if rule.Custom {
		fair, err = New[netip.Addr](rule.TrackedPerTick, rule.UntrackedPerTick, opts...)
	} else {
		fair, err = NewForRate[netip.Addr](rule.MaxCostPerSec, opts...)
	}
	if err != nil {
		return nil, err
	}
	return &limiterEntry{rule: *rule, fair: fair}, nil
}

func sumBudgets(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}
