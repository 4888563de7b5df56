package ratelimit

import (
	"math"

	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	metricsv1 "go.opentelemetry.io/proto/otlp/metrics/v1"
	profilesv1 "go.opentelemetry.io/proto/otlp/profiles/v1development"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// Cost helpers for OTLP ingest endpoints. A telemetry receiver that sheds
// load per exporting client typically charges either the encoded size of
// each export request or the number of records it carries.

// MessageCost returns the encoded size of a proto message as a limiter cost.
func MessageCost(m proto.Message) uint32 {
	return saturateCost(uint64(proto.Size(m)))
}

// LogRecordCost returns the number of log records across resource logs.
func LogRecordCost(resourceLogs []*logsv1.ResourceLogs) uint32 {
	var n uint64
	for _, rl := range resourceLogs {
		for _, sl := range rl.GetScopeLogs() {
			n += uint64(len(sl.GetLogRecords()))
		}
	}
	return saturateCost(n)
}

// DataPointCost returns the number of metric data points across resource
// metrics, regardless of metric type.
func DataPointCost(resourceMetrics []*metricsv1.ResourceMetrics) uint32 {
	var n uint64
	for _, rm := range resourceMetrics {
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				switch {
				case m.GetGauge() != nil:
					n += uint64(len(m.GetGauge().GetDataPoints()))
				case m.GetSum() != nil:
					n += uint64(len(m.GetSum().GetDataPoints()))
				case m.GetHistogram() != nil:
					n += uint64(len(m.GetHistogram().GetDataPoints()))
				case m.GetExponentialHistogram() != nil:
					n += uint64(len(m.GetExponentialHistogram().GetDataPoints()))
				case m.GetSummary() != nil:
					n += uint64(len(m.GetSummary().GetDataPoints()))
				}
			}
		}
	}
	return saturateCost(n)
}

// SpanCost returns the number of spans across resource spans.
func SpanCost(resourceSpans []*tracev1.ResourceSpans) uint32 {
	var n uint64
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			n += uint64(len(ss.GetSpans()))
		}
	}
	return saturateCost(n)
}

// SampleCost returns the number of profile samples across resource profiles.
func SampleCost(resourceProfiles []*profilesv1.ResourceProfiles) uint32 {
	var n uint64
	for _, rp := range resourceProfiles {
		for _, sp := range rp.GetScopeProfiles() {
			for _, p := range sp.GetProfiles() {
				n += uint64(len(p.GetSample()))
			}
		}
	}
	return saturateCost(n)
}

func saturateCost(n uint64) uint32 {
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
