package observability

import (
	"strings"

	"github.com/smallbiznis/payrecon/internal/config"
)

// Config is the telemetry view of the application config shared by the
// logger, tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

var debugEnvironments = map[string]bool{
	"dev":         true,
	"development": true,
	"local":       true,
	"test":        true,
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "payrecon"
	}
	telemetry := cfg.Telemetry
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.TrimSpace(telemetry.LogLevel),
		LogFormat:            strings.TrimSpace(telemetry.LogFormat),
		OtelEnabled:          telemetry.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(telemetry.OTLPEndpoint),
		OtelExporterProtocol: strings.TrimSpace(telemetry.OTLPProtocol),
		OtelSamplingRatio:    telemetry.SamplingRatio,
	}
}

// Debug enables development logging and stack capture.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug") || debugEnvironments[strings.ToLower(c.Environment)]
}
