package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"8787"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:"server.log"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	Redis struct {
		Host     string `envconfig:"REDIS_HOST" default:"localhost"`
		Port     string `envconfig:"REDIS_PORT" default:"6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
	} `envconfig:""`

	Inbox struct {
		// Coalescing window for realtime change batches pushed to sessions
		ThrottleMs int `envconfig:"INBOX_THROTTLE_MS" default:"2000"`
		// Working-set ceiling per dashboard session
		CacheLimit int `envconfig:"INBOX_CACHE_LIMIT" default:"1000"`
	} `envconfig:""`

	Sync struct {
		// Interval between background sync sweeps over active platforms
		IntervalMinutes int  `envconfig:"SYNC_INTERVAL_MINUTES" default:"15"`
		Enabled         bool `envconfig:"SYNC_ENABLED" default:"true"`
	} `envconfig:""`

	OTLP struct {
		Endpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	} `envconfig:""`

	Vendor struct {
		GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
		GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
		MetaAppID          string `envconfig:"META_APP_ID"`
		MetaAppSecret      string `envconfig:"META_APP_SECRET"`
		TrustpilotAPIKey   string `envconfig:"TRUSTPILOT_API_KEY"`
		TrustpilotSecret   string `envconfig:"TRUSTPILOT_API_SECRET"`
		YelpAPIKey         string `envconfig:"YELP_API_KEY"`
	} `envconfig:""`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
