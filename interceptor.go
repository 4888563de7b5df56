package ratelimit

import (
	"context"
	"net/netip"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// KeyFunc derives the limiter key from a request context. The second
// return value reports whether a key could be derived; requests without a
// key are not limited.
type KeyFunc func(ctx context.Context) (netip.Addr, bool)

// CostFunc computes the limiter cost of a request message.
type CostFunc func(req any) uint32

type interceptorConfig struct {
	keyFunc  KeyFunc
	costFunc CostFunc
}

// InterceptorOption configures the gRPC interceptors.
type InterceptorOption func(*interceptorConfig)

// WithKeyFunc overrides how the source key is derived from the context.
// The default uses the peer's IP address.
func WithKeyFunc(fn KeyFunc) InterceptorOption {
	return func(c *interceptorConfig) {
		c.keyFunc = fn
	}
}

// WithCostFunc overrides how request cost is computed. The default charges
// the encoded proto size of the request, or 1 for non-proto requests.
func WithCostFunc(fn CostFunc) InterceptorOption {
	return func(c *interceptorConfig) {
		c.costFunc = fn
	}
}

func newInterceptorConfig(opts []InterceptorOption) interceptorConfig {
	cfg := interceptorConfig{
		keyFunc:  PeerIPKey,
		costFunc: defaultCost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// PeerIPKey derives the limiter key from the gRPC peer's IP address.
func PeerIPKey(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(p.Addr.String()); err == nil {
		return IPKey(ap.Addr()), true
	}
	if addr, err := netip.ParseAddr(p.Addr.String()); err == nil {
		return IPKey(addr), true
	}
	return netip.Addr{}, false
}

func defaultCost(req any) uint32 {
	if m, ok := req.(proto.Message); ok {
		return MessageCost(m)
	}
	return 1
}

var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// UnaryServerInterceptor returns a gRPC interceptor that sheds unary
// requests per source through the given limiter. Rejected requests fail
// with ResourceExhausted. Requests whose source cannot be determined pass
// through unlimited.
func UnaryServerInterceptor(l *Limiter[netip.Addr], opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	cfg := newInterceptorConfig(opts)
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key, ok := cfg.keyFunc(ctx)
		if ok && !l.Allow(key, cfg.costFunc(req)) {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC interceptor that sheds streaming
// requests per source. Stream establishment costs 1; each received message
// is charged through the cost function. A rejected message fails the stream
// with ResourceExhausted.
func StreamServerInterceptor(l *Limiter[netip.Addr], opts ...InterceptorOption) grpc.StreamServerInterceptor {
	cfg := newInterceptorConfig(opts)
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		key, ok := cfg.keyFunc(ss.Context())
		if !ok {
			return handler(srv, ss)
		}
		if !l.Allow(key, 1) {
			return errRateLimited
		}
		return handler(srv, &limitedStream{ServerStream: ss, limiter: l, key: key, cost: cfg.costFunc})
	}
}

// limitedStream charges each received message against the limiter.
type limitedStream struct {
	grpc.ServerStream
	limiter *Limiter[netip.Addr]
	key     netip.Addr
	cost    CostFunc
}

func (s *limitedStream) RecvMsg(m any) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	if !s.limiter.Allow(s.key, s.cost(m)) {
		return errRateLimited
	}
	return nil
}
