package ratelimit

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/usetero/ratelimit-go/internal/engine"
)

const (
	// DefaultTickDuration is the decay tick used when no option overrides it.
	DefaultTickDuration = time.Second
	// DefaultMaxKeys is the tracked-source capacity used when no option
	// overrides it.
	DefaultMaxKeys = 1000
)

type limiterConfig struct {
	tickDuration time.Duration
	maxKeys      int
	seed         uint64
	seeded       bool
	now          func() time.Time
	stats        *LimiterStats
}

// Option configures a limiter.
type Option func(*limiterConfig)

// WithTickDuration sets the decay tick. Recent cost halves once per tick.
// Must be at least one microsecond.
func WithTickDuration(d time.Duration) Option {
	return func(c *limiterConfig) { c.tickDuration = d }
}

// WithMaxKeys sets how many sources the limiter tracks individually.
func WithMaxKeys(n int) Option {
	return func(c *limiterConfig) { c.maxKeys = n }
}

// WithSeed seeds the limiter's internal random generator, making its
// decisions reproducible. Intended for tests and simulations.
func WithSeed(seed uint64) Option {
	return func(c *limiterConfig) {
		c.seed = seed
		c.seeded = true
	}
}

// WithTimeSource replaces the clock used by Allow. Intended for tests.
func WithTimeSource(now func() time.Time) Option {
	return func(c *limiterConfig) { c.now = now }
}

// WithStats attaches a stats collector to the limiter.
func WithStats(stats *LimiterStats) Option {
	return func(c *limiterConfig) { c.stats = stats }
}

func newLimiterConfig(opts []Option) limiterConfig {
	cfg := limiterConfig{
		tickDuration: DefaultTickDuration,
		maxKeys:      DefaultMaxKeys,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *limiterConfig) prng() *rand.Rand {
	if c.seeded {
		return rand.New(rand.NewPCG(c.seed, c.seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Limiter sheds load fairly across traffic sources identified by a key.
//
// It wraps the single-owner fair limiter with a mutex, so one Limiter may be
// shared by concurrent request handlers. Construct one per protected
// resource and call Allow or Check once per request.
type Limiter[K comparable] struct {
	mu    sync.Mutex
	inner *engine.FairLimiter[K]
	now   func() time.Time
	stats *LimiterStats
}

// New creates a fair limiter with explicit per-tick budgets.
//
// The limiter tracks up to maxKeys of the recently heaviest sources and
// allows trackedPerTick cost per tick from them, plus untrackedPerTick cost
// per tick from all other sources collectively. Both budgets are doubled
// internally for burst headroom. Set both to zero to reject everything.
func New[K comparable](trackedPerTick, untrackedPerTick uint32, opts ...Option) (*Limiter[K], error) {
	cfg := newLimiterConfig(opts)
	if cfg.maxKeys < 1 {
		return nil, NewError(ErrInvalidRule, "max keys must be at least 1")
	}
	inner, err := engine.NewFairLimiter[K](
		cfg.tickDuration, trackedPerTick, untrackedPerTick, cfg.maxKeys, cfg.prng(), cfg.now())
	if err != nil {
		return nil, WrapError(ErrInvalidTickDuration, "cannot create limiter", err)
	}
	stats := cfg.stats
	if stats == nil {
		stats = &LimiterStats{}
	}
	inner.SetStats(stats)
	return &Limiter[K]{inner: inner, now: cfg.now, stats: stats}, nil
}

// NewForRate creates a fair limiter from a single target throughput in cost
// per second. The budget is split 80% to tracked sources and 20% to the
// untracked long tail.
//
// Returns an error when maxCostPerSec is negative or not finite, or when the
// derived per-tick budgets round down to zero for a non-zero rate.
func NewForRate[K comparable](maxCostPerSec float64, opts ...Option) (*Limiter[K], error) {
	cfg := newLimiterConfig(opts)
	tracked, untracked, err := splitRate(maxCostPerSec, cfg.tickDuration)
	if err != nil {
		return nil, err
	}
	return New[K](tracked, untracked, opts...)
}

// splitRate converts a per-second rate to per-tick tracked and untracked
// budgets using an 80/20 split.
func splitRate(maxCostPerSec float64, tick time.Duration) (tracked, untracked uint32, err error) {
	if math.IsNaN(maxCostPerSec) || math.IsInf(maxCostPerSec, 0) || maxCostPerSec < 0 {
		return 0, 0, NewError(ErrInvalidRate, "rate must be finite and not negative")
	}
	perTick := maxCostPerSec * tick.Seconds()
	if perTick > float64(math.MaxUint32) {
		perTick = float64(math.MaxUint32)
	}
	tracked = uint32(perTick * 0.8)
	untracked = uint32(perTick * 0.2)
	if maxCostPerSec > 0 && (tracked == 0 || untracked == 0) {
		return 0, 0, NewError(ErrInvalidRate, "rate rounds to a zero per-tick budget")
	}
	return tracked, untracked, nil
}

// Allow reports whether a request with the given cost from the given source
// should be handled now. Each request must be checked exactly once.
func (l *Limiter[K]) Allow(key K, cost uint32) bool {
	return l.Check(key, cost, l.now())
}

// Check is Allow with a caller-supplied timestamp, for simulated clocks.
func (l *Limiter[K]) Check(key K, cost uint32, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Check(key, cost, now)
}

// NumTrackedKeys returns how many sources currently have a tracked slot.
func (l *Limiter[K]) NumTrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.NumTrackedKeys()
}

// Stats returns the limiter's stats collector.
func (l *Limiter[K]) Stats() *LimiterStats {
	return l.stats
}

// SimpleLimiter limits total throughput without per-source fairness. It is
// the right tool when requests are anonymous or fairness is handled
// elsewhere. Safe for concurrent use.
type SimpleLimiter struct {
	mu    sync.Mutex
	inner *engine.ProbLimiter
	now   func() time.Time
	stats *LimiterStats
}

// NewSimple creates a simple limiter with an explicit per-tick budget,
// doubled internally for burst headroom.
func NewSimple(maxCostPerTick uint32, opts ...Option) (*SimpleLimiter, error) {
	cfg := newLimiterConfig(opts)
	inner, err := engine.NewProbLimiter(cfg.tickDuration, maxCostPerTick, cfg.prng(), cfg.now())
	if err != nil {
		return nil, WrapError(ErrInvalidTickDuration, "cannot create limiter", err)
	}
	stats := cfg.stats
	if stats == nil {
		stats = &LimiterStats{}
	}
	inner.SetStats(stats)
	return &SimpleLimiter{inner: inner, now: cfg.now, stats: stats}, nil
}

// NewSimpleForRate creates a simple limiter from a target throughput in cost
// per second.
func NewSimpleForRate(maxCostPerSec float64, opts ...Option) (*SimpleLimiter, error) {
	cfg := newLimiterConfig(opts)
	if math.IsNaN(maxCostPerSec) || math.IsInf(maxCostPerSec, 0) || maxCostPerSec < 0 {
		return nil, NewError(ErrInvalidRate, "rate must be finite and not negative")
	}
	perTick := maxCostPerSec * cfg.tickDuration.Seconds()
	if perTick > float64(math.MaxUint32) {
		perTick = float64(math.MaxUint32)
	}
	budget := uint32(perTick)
	if maxCostPerSec > 0 && budget == 0 {
		return nil, NewError(ErrInvalidRate, "rate rounds to a zero per-tick budget")
	}
	return NewSimple(budget, opts...)
}

// Allow reports whether a request with the given cost should be handled now.
func (l *SimpleLimiter) Allow(cost uint32) bool {
	return l.Check(cost, l.now())
}

// Check is Allow with a caller-supplied timestamp, for simulated clocks.
func (l *SimpleLimiter) Check(cost uint32, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Check(cost, now)
}

// Stats returns the limiter's stats collector.
func (l *SimpleLimiter) Stats() *LimiterStats {
	return l.stats
}
