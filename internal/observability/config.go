package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/controlplane/internal/config"
)

// envPrefix namespaces control plane overrides. Every key is looked up as
// CONTROLPLANE_<KEY> first and then bare, so a shared OTEL_* collector
// setup keeps working.
const envPrefix = "CONTROLPLANE_"

const (
	defaultServiceName  = "controlplane"
	defaultSamplingProd = 0.1
)

// Config is the observability slice of the control plane configuration.
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

	// UntracedRoutes are served without a span.
	UntracedRoutes []string
}

func LoadConfig(cfg config.Config) Config {
	environment := strings.ToLower(lookup("DEPLOYMENT_ENV", cfg.Environment))
	dev := isDevEnv(environment)

	serviceName := lookup("SERVICE_NAME", cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	logFormat := "json"
	sampling := defaultSamplingProd
	if dev {
		logFormat = "console"
		sampling = 1
	}

	endpoint := lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := strings.ToLower(lookup("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if traces := lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = strings.ToLower(traces)
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              lookup("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT", logFormat)),
		OtelEnabled:          lookupBool("OTEL_ENABLED", endpoint != "" && environment != "test"),
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    clampRatio(lookupFloat("OTEL_SAMPLING_RATIO", sampling)),
		UntracedRoutes:       lookupList("UNTRACED_ROUTES", []string{"/health", "/metrics"}),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// lookup returns the prefixed value, then the bare one, then def.
func lookup(key, def string) string {
	for _, name := range []string{envPrefix + key, key} {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(def)
}

func lookupBool(key string, def bool) bool {
	switch strings.ToLower(lookup(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func lookupFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(lookup(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}

func lookupList(key string, def []string) []string {
	value := lookup(key, "")
	if value == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
