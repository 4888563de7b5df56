package engine

import "sync/atomic"

// LimiterMode selects the limiting algorithm for a rule.
type LimiterMode int

const (
	// ModeFair tracks per-source windows and sheds load fairly.
	ModeFair LimiterMode = iota
	// ModeSimple uses a single bucket and treats all sources equally.
	ModeSimple
)

func (m LimiterMode) String() string {
	switch m {
	case ModeFair:
		return "fair"
	case ModeSimple:
		return "simple"
	default:
		return "unknown"
	}
}

// KeyKind selects how source addresses are normalized into keys.
type KeyKind int

const (
	// KeyIP tracks each IP address individually.
	KeyIP KeyKind = iota
	// KeySubnet groups globally routable addresses by prefix.
	KeySubnet
)

func (k KeyKind) String() string {
	switch k {
	case KeyIP:
		return "ip"
	case KeySubnet:
		return "subnet"
	default:
		return "unknown"
	}
}

// LimiterStats holds atomic counters for a single limiter.
//
// All record methods are safe to call on a nil receiver, so limiters can
// run without a collector attached.
type LimiterStats struct {
	Accepted         atomic.Uint64
	Rejected         atomic.Uint64
	TrackedAccepted  atomic.Uint64
	LongTailAccepted atomic.Uint64
	Evictions        atomic.Uint64
	Discards         atomic.Uint64
}

// RecordTrackedAccept counts a request accepted against a tracked source.
func (s *LimiterStats) RecordTrackedAccept() {
	if s == nil {
		return
	}
	s.Accepted.Add(1)
	s.TrackedAccepted.Add(1)
}

// RecordLongTailAccept counts a request accepted against the long-tail bucket.
func (s *LimiterStats) RecordLongTailAccept() {
	if s == nil {
		return
	}
	s.Accepted.Add(1)
	s.LongTailAccepted.Add(1)
}

// RecordAccept counts an accepted request with no source attribution.
func (s *LimiterStats) RecordAccept() {
	if s == nil {
		return
	}
	s.Accepted.Add(1)
}

// RecordReject counts a rejected request.
func (s *LimiterStats) RecordReject() {
	if s == nil {
		return
	}
	s.Rejected.Add(1)
}

// RecordEviction counts a tracked source evicted to make room for another.
func (s *LimiterStats) RecordEviction() {
	if s == nil {
		return
	}
	s.Evictions.Add(1)
}

// RecordDiscard counts an idle tracked source garbage-collected on rejection.
func (s *LimiterStats) RecordDiscard() {
	if s == nil {
		return
	}
	s.Discards.Add(1)
}

// LimiterStatsSnapshot is an immutable copy of stats for reporting.
type LimiterStatsSnapshot struct {
	LimiterID        string `json:"limiter_id"`
	Accepted         uint64 `json:"accepted"`
	Rejected         uint64 `json:"rejected"`
	TrackedAccepted  uint64 `json:"tracked_accepted"`
	LongTailAccepted uint64 `json:"long_tail_accepted"`
	Evictions        uint64 `json:"evictions"`
	Discards         uint64 `json:"discards"`
}

// Snapshot creates an immutable snapshot of the current stats.
func (s *LimiterStats) Snapshot(limiterID string) LimiterStatsSnapshot {
	return LimiterStatsSnapshot{
		LimiterID:        limiterID,
		Accepted:         s.Accepted.Load(),
		Rejected:         s.Rejected.Load(),
		TrackedAccepted:  s.TrackedAccepted.Load(),
		LongTailAccepted: s.LongTailAccepted.Load(),
		Evictions:        s.Evictions.Load(),
		Discards:         s.Discards.Load(),
	}
}
