package config

import (
	"os"

	"github.com/joho/godotenv"
)

// EnvConfig holds environment-variable overrides for the YAML-configured
// values, loaded from a .env file (development convenience) plus the
// process environment, matching the teacher's dev/prod env-loading pattern.
type EnvConfig struct {
	Listen        string
	MetricsListen string
	LogLevel      string
	DNSMode       string
}

// LoadEnv loads a .env file if present (ignored if missing) and reads
// override values from the environment.
func LoadEnv() *EnvConfig {
	godotenv.Load()

	return &EnvConfig{
		Listen:        os.Getenv("CHAOSPROXY_LISTEN"),
		MetricsListen: os.Getenv("CHAOSPROXY_METRICS_LISTEN"),
		LogLevel:      os.Getenv("CHAOSPROXY_LOG_LEVEL"),
		DNSMode:       os.Getenv("CHAOSPROXY_DNS_MODE"),
	}
}
