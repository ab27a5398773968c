package observability

import (
	"os"
	"strings"
)

// Config selects how telemetry leaves the process. Protocol is one of
// grpc, http, or none.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Protocol       string
	Insecure       bool
}

func FromEnv(serviceName, serviceVersion, environment, endpoint string) Config {
	protocol := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")))
	if protocol == "" {
		protocol = "grpc"
	}
	if strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") || endpoint == "" {
		protocol = "none"
	}
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    environment,
		Endpoint:       endpoint,
		Protocol:       protocol,
		Insecure:       !strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_SECURE"), "true"),
	}
}
