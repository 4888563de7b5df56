package jsonlimit

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/usetero/ratelimit-go/internal/engine"
)

// DefaultMaxKeys is the tracked-source capacity used when a rule does not
// set one.
const DefaultMaxKeys = 1000

// Rule is a parsed and validated limiter rule.
//
// Exactly one of MaxCostPerSec or the per-tick budgets is meaningful,
// selected by Custom. Rules are plain comparable values so callers can
// detect whether a reloaded rule actually changed.
type Rule struct {
	ID      string
	Name    string
	Mode    engine.LimiterMode
	Key     engine.KeyKind
	MaxKeys int

	Custom           bool
	MaxCostPerSec    float64
	TickDuration     time.Duration
	TrackedPerTick   uint32
	UntrackedPerTick uint32
}

// Parser converts JSON rule files to Rule values.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads and parses rules from a reader.
func (p *Parser) Parse(r io.Reader) ([]*Rule, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return p.convertFile(file)
}

// ParseBytes parses rules from a byte slice.
func (p *Parser) ParseBytes(data []byte) ([]*Rule, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return p.convertFile(file)
}

func (p *Parser) convertFile(file File) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(file.Limiters))
	seen := make(map[string]bool, len(file.Limiters))
	for i, jl := range file.Limiters {
		rule, err := p.convertLimiter(jl)
		if err != nil {
			return nil, fmt.Errorf("limiter %d (%s): %w", i, jl.ID, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("limiter %d: %w", i, NewParseError("id", "duplicate: "+rule.ID))
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

func (p *Parser) convertLimiter(jl Limiter) (*Rule, error) {
	if jl.ID == "" {
		return nil, NewParseError("id", "required")
	}
	if jl.Name == "" {
		return nil, NewParseError("name", "required")
	}

	rule := &Rule{
		ID:      jl.ID,
		Name:    jl.Name,
		MaxKeys: jl.MaxKeys,
	}
	if rule.MaxKeys < 0 {
		return nil, NewParseError("max_keys", "must not be negative")
	}
	if rule.MaxKeys == 0 {
		rule.MaxKeys = DefaultMaxKeys
	}

	switch jl.Mode {
	case "", "fair":
		rule.Mode = engine.ModeFair
	case "simple":
		rule.Mode = engine.ModeSimple
	default:
		return nil, NewParseError("mode", "unknown mode: "+jl.Mode)
	}

	switch jl.Key {
	case "", "ip":
		rule.Key = engine.KeyIP
	case "subnet":
		rule.Key = engine.KeySubnet
	default:
		return nil, NewParseError("key", "unknown key kind: "+jl.Key)
	}

	switch {
	case jl.Rate.PerSec != nil:
		perSec := *jl.Rate.PerSec
		if math.IsNaN(perSec) || math.IsInf(perSec, 0) || perSec < 0 {
			return nil, NewParseError("rate", "must be finite and not negative")
		}
		rule.MaxCostPerSec = perSec
		rule.TickDuration = time.Second
	case jl.Rate.Custom != nil:
		custom := *jl.Rate.Custom
		rule.Custom = true
		rule.TickDuration = time.Second
		if custom.TickMs != 0 {
			if custom.TickMs < 1 {
				return nil, NewParseError("rate.tick_ms", "must be at least 1")
			}
			rule.TickDuration = time.Duration(custom.TickMs) * time.Millisecond
		}
		rule.TrackedPerTick = custom.TrackedPerTick
		rule.UntrackedPerTick = custom.UntrackedPerTick
	default:
		return nil, NewParseError("rate", "required")
	}

	return rule, nil
}
