package ratelimit

import (
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
)

// ServiceMetadata describes the client's identity for rule sync requests.
// This is used by the HTTP provider to identify itself to the rules server.
type ServiceMetadata struct {
	// ServiceName is the name of the service (required).
	ServiceName string `json:"service_name"`
	// ServiceNamespace is the namespace the service belongs to (required).
	ServiceNamespace string `json:"service_namespace"`
	// ServiceInstanceID is a unique identifier for this service instance (required).
	ServiceInstanceID string `json:"service_instance_id"`
	// ServiceVersion is the version of the service (required).
	ServiceVersion string `json:"service_version"`
	// Labels are additional metadata labels.
	Labels map[string]string `json:"labels,omitempty"`
	// ResourceAttributes are additional resource attributes beyond the required ones.
	ResourceAttributes map[string]string `json:"resource_attributes,omitempty"`
}

// ToResourceAttributes converts ServiceMetadata to OTLP resource attributes,
// for servers that report their identity on telemetry they emit.
func (m *ServiceMetadata) ToResourceAttributes() []*commonv1.KeyValue {
	if m == nil {
		return nil
	}

	// Required fields first
	attrs := []*commonv1.KeyValue{
		{Key: "service.name", Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: m.ServiceName}}},
		{Key: "service.namespace", Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: m.ServiceNamespace}}},
		{Key: "service.instance.id", Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: m.ServiceInstanceID}}},
		{Key: "service.version", Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: m.ServiceVersion}}},
	}

	for k, v := range m.ResourceAttributes {
		attrs = append(attrs, &commonv1.KeyValue{
			Key:   k,
			Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: v}},
		})
	}

	return attrs
}
