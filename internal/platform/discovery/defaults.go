// Package discovery centralizes the network address conventions of the
// contentstream services.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceContentd is the content daemon's gRPC (health) identity.
	ServiceContentd = "contentd"
	// ServiceMetrics is the content daemon's Prometheus HTTP identity.
	ServiceMetrics = "contentd-metrics"
)

var grpcPorts = map[string]int{
	ServiceContentd: 8095,
}

var httpPorts = map[string]int{
	ServiceMetrics: 9095,
}

// DefaultGRPCAddr returns the canonical gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultHTTPAddr returns value when set, otherwise the service convention.
func OrDefaultHTTPAddr(value, service string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return DefaultHTTPAddr(service)
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return "localhost:" + strconv.Itoa(port)
}
