package ratelimit

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticProvider serves a fixed rule set and lets tests push updates.
type staticProvider struct {
	rules    []*Rule
	callback RuleCallback
}

func (p *staticProvider) Load() ([]*Rule, error) { return p.rules, nil }

func (p *staticProvider) Subscribe(callback RuleCallback) error {
	p.callback = callback
	callback(p.rules)
	return nil
}

func (p *staticProvider) SetStatsCollector(collector StatsCollector) {}

func (p *staticProvider) update(rules []*Rule) {
	p.rules = rules
	p.callback(rules)
}

func fairRule(id string, rate float64) *Rule {
	return &Rule{
		ID:            id,
		Name:          id,
		Mode:          ModeFair,
		Key:           KeyIP,
		MaxKeys:       100,
		MaxCostPerSec: rate,
		TickDuration:  time.Second,
	}
}

func simpleRule(id string, rate float64) *Rule {
	r := fairRule(id, rate)
	r.Mode = ModeSimple
	return r
}

func TestRegistryBuildsLimitersFromProvider(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := &staticProvider{rules: []*Rule{
		fairRule("per-client", 1000),
		simpleRule("total", 500),
	}}

	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	fair, ok := registry.Limiter("per-client")
	require.True(t, ok)
	assert.NotNil(t, fair)

	simple, ok := registry.SimpleLimiter("total")
	require.True(t, ok)
	assert.NotNil(t, simple)

	// Mode lookups do not cross over.
	_, ok = registry.SimpleLimiter("per-client")
	assert.False(t, ok)
	_, ok = registry.Limiter("total")
	assert.False(t, ok)
}

func TestRegistryAllow(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := &staticProvider{rules: []*Rule{fairRule("per-client", 1000)}}

	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	addr := netip.MustParseAddr("203.0.113.7")
	assert.True(t, registry.Allow("per-client", addr, 1), "request under budget should pass")

	// Unknown rule IDs accept rather than block traffic.
	assert.True(t, registry.Allow("no-such-rule", addr, 1))
}

func TestRegistryKeepsLimiterStateForUnchangedRules(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := &staticProvider{rules: []*Rule{
		fairRule("stable", 1000),
		fairRule("changing", 1000),
	}}

	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	stableBefore, ok := registry.Limiter("stable")
	require.True(t, ok)
	changingBefore, ok := registry.Limiter("changing")
	require.True(t, ok)

	rebuilt := false
	registry.SetOnRebuild(func() { rebuilt = true })

	provider.update([]*Rule{
		fairRule("stable", 1000),
		fairRule("changing", 2000),
	})
	require.True(t, rebuilt)

	stableAfter, ok := registry.Limiter("stable")
	require.True(t, ok)
	changingAfter, ok := registry.Limiter("changing")
	require.True(t, ok)

	assert.Same(t, stableBefore, stableAfter, "unchanged rule should keep its limiter")
	assert.NotSame(t, changingBefore, changingAfter, "changed rule should get a fresh limiter")
}

func TestRegistrySkipsUnbuildableRules(t *testing.T) {
	registry := NewLimiterRegistry()

	var buildErr error
	registry.SetOnError(func(err error) { buildErr = err })

	bad := fairRule("bad", 1000)
	bad.Custom = true
	bad.TickDuration = time.Nanosecond

	provider := &staticProvider{rules: []*Rule{bad, fairRule("good", 1000)}}
	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	_, ok := registry.Limiter("bad")
	assert.False(t, ok)
	_, ok = registry.Limiter("good")
	assert.True(t, ok)

	require.Error(t, buildErr)
	assert.True(t, IsInvalidRule(buildErr))
}

func TestRegistryUnregisterRemovesLimiters(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := &staticProvider{rules: []*Rule{fairRule("per-client", 1000)}}

	handle, err := registry.Register(provider)
	require.NoError(t, err)

	_, ok := registry.Limiter("per-client")
	require.True(t, ok)

	handle.Unregister()

	_, ok = registry.Limiter("per-client")
	assert.False(t, ok)
	assert.Empty(t, registry.CollectStats())
}

func TestRegistryCollectStats(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := &staticProvider{rules: []*Rule{fairRule("per-client", 1000)}}

	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	addr := netip.MustParseAddr("203.0.113.7")
	require.True(t, registry.Allow("per-client", addr, 1))

	snapshots := registry.CollectStats()
	require.Len(t, snapshots, 1)
	assert.Equal(t, "per-client", snapshots[0].LimiterID)
	assert.Equal(t, uint64(1), snapshots[0].Accepted)
}

func TestRegistryWithFileProvider(t *testing.T) {
	registry := NewLimiterRegistry()
	provider := NewFileProvider(filepath.Join("testdata", "limits.json"))

	handle, err := registry.Register(provider)
	require.NoError(t, err)
	defer handle.Unregister()

	_, ok := registry.Limiter("ingest-bytes")
	assert.True(t, ok)
	_, ok = registry.Limiter("subnet-bytes")
	assert.True(t, ok)
	_, ok = registry.SimpleLimiter("total-requests")
	assert.True(t, ok)
}
