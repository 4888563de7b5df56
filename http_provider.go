package ratelimit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/usetero/ratelimit-go/internal/jsonlimit"
)

// HttpProviderConfig configures an HTTP rule provider.
type HttpProviderConfig struct {
	// URL is the endpoint to poll for rule updates (required).
	URL string
	// Headers are additional HTTP headers to include in requests.
	Headers map[string]string
	// PollInterval is how often to check for rule updates.
	// Default is 60 seconds.
	PollInterval time.Duration
	// ServiceMetadata identifies this client to the rules server.
	ServiceMetadata *ServiceMetadata
	// HTTPClient allows providing a custom HTTP client.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// OnError is called when a sync error occurs.
	OnError func(error)
	// OnSync is called after a successful sync.
	OnSync func()
}

// HttpProviderOption configures an HttpProvider.
type HttpProviderOption func(*HttpProviderConfig)

// WithHeaders sets additional HTTP headers.
func WithHeaders(headers map[string]string) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.Headers = headers
	}
}

// WithHTTPPollInterval sets the polling interval.
func WithHTTPPollInterval(interval time.Duration) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.PollInterval = interval
	}
}

// WithServiceMetadata sets the client metadata for sync requests.
func WithServiceMetadata(metadata *ServiceMetadata) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.ServiceMetadata = metadata
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.HTTPClient = client
	}
}

// WithHTTPOnError sets an error callback.
func WithHTTPOnError(fn func(error)) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.OnError = fn
	}
}

// WithHTTPOnSync sets a sync success callback.
func WithHTTPOnSync(fn func()) HttpProviderOption {
	return func(c *HttpProviderConfig) {
		c.OnSync = fn
	}
}

var _ RuleProvider = &HttpProvider{}

// HttpProvider loads limiter rules from an HTTP endpoint.
//
// It POSTs a JSON sync request identifying the client and carrying current
// limiter stats, and expects the full rules document in response. Rule
// changes are detected by hashing the response body.
type HttpProvider struct {
	config HttpProviderConfig
	client *http.Client
	parser *jsonlimit.Parser

	mu             sync.RWMutex
	callback       RuleCallback
	statsCollector StatsCollector

	// Sync state
	lastHash string

	// Runtime
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHttpProvider creates a new HTTP rule provider.
func NewHttpProvider(url string, opts ...HttpProviderOption) *HttpProvider {
	config := HttpProviderConfig{
		URL:          url,
		PollInterval: 60 * time.Second,
	}

	for _, opt := range opts {
		opt(&config)
	}

	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &HttpProvider{
		config: config,
		client: client,
		parser: jsonlimit.NewParser(),
	}
}

// Load performs an immediate sync and returns the current rules.
func (p *HttpProvider) Load() ([]*Rule, error) {
	return p.sync(context.Background(), true)
}

// Subscribe registers a callback for rule changes and starts polling.
func (p *HttpProvider) Subscribe(callback RuleCallback) error {
	p.mu.Lock()
	p.callback = callback
	p.mu.Unlock()

	// Initial load
	rules, err := p.Load()
	if err != nil {
		return err
	}

	callback(rules)

	// Start polling
	if p.config.PollInterval > 0 {
		p.startPolling()
	}

	return nil
}

// SetStatsCollector registers a stats collector for sync requests.
func (p *HttpProvider) SetStatsCollector(collector StatsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statsCollector = collector
}

// Stop stops the polling loop.
func (p *HttpProvider) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *HttpProvider) startPolling() {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pollLoop(ctx)
}

func (p *HttpProvider) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.doSync(ctx)
		}
	}
}

func (p *HttpProvider) doSync(ctx context.Context) {
	p.mu.RLock()
	lastHash := p.lastHash
	callback := p.callback
	p.mu.RUnlock()

	rules, err := p.sync(ctx, false)
	if err != nil {
		if p.config.OnError != nil {
			p.config.OnError(err)
		}
		return
	}

	// Check if rules changed
	p.mu.RLock()
	newHash := p.lastHash
	p.mu.RUnlock()

	if newHash != lastHash && callback != nil {
		callback(rules)
	}

	if p.config.OnSync != nil {
		p.config.OnSync()
	}
}

// syncRequest is the JSON body sent to the rules endpoint.
type syncRequest struct {
	FullSync     bool                   `json:"full_sync"`
	LastHash     string                 `json:"last_hash,omitempty"`
	Service      *ServiceMetadata       `json:"service,omitempty"`
	LimiterStats []LimiterStatsSnapshot `json:"limiter_stats,omitempty"`
}

func (p *HttpProvider) sync(ctx context.Context, fullSync bool) ([]*Rule, error) {
	body, err := json.Marshal(p.buildSyncRequest(fullSync))
	if err != nil {
		return nil, WrapError(ErrProvider, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(ErrProvider, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	for k, v := range p.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, WrapError(ErrProvider, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewError(ErrProvider, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrProvider, "failed to read response", err)
	}

	rules, err := p.parser.ParseBytes(respBody)
	if err != nil {
		return nil, WrapError(ErrProvider, "failed to decode rules", err)
	}

	hash := sha256.Sum256(respBody)

	p.mu.Lock()
	p.lastHash = hex.EncodeToString(hash[:])
	p.mu.Unlock()

	return rules, nil
}

func (p *HttpProvider) buildSyncRequest(fullSync bool) *syncRequest {
	p.mu.RLock()
	lastHash := p.lastHash
	statsCollector := p.statsCollector
	p.mu.RUnlock()

	req := &syncRequest{
		FullSync: fullSync,
		LastHash: lastHash,
		Service:  p.config.ServiceMetadata,
	}

	if statsCollector != nil {
		req.LimiterStats = statsCollector()
	}

	return req
}
