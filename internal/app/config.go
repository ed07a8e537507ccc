package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/notegate/notegate/internal/oauth"
	"github.com/notegate/notegate/internal/volsync"
)

// Config holds runtime configuration for the application. It is built once
// at process entry and passed explicitly into the components that need it.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/app.db"`

	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	CSRFSecret    string        `envconfig:"CSRF_SECRET" required:"true"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectURL   string `envconfig:"OAUTH_REDIRECT_URL" default:"http://localhost:8080/auth/callback"`

	// Consulted once at process start to seed the allow-list.
	BootstrapAdminEmail string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`

	ReplicaBucket   string `envconfig:"REPLICA_BUCKET"`
	ReplicaKey      string `envconfig:"REPLICA_KEY" default:"app.db"`
	ReplicaRegion   string `envconfig:"REPLICA_REGION" default:"us-east-1"`
	ReplicaEndpoint string `envconfig:"REPLICA_ENDPOINT"`
	ReplicaAccess   string `envconfig:"REPLICA_ACCESS_KEY"`
	ReplicaSecret   string `envconfig:"REPLICA_SECRET_KEY"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// OAuth returns the identity-provider client configuration.
func (c *Config) OAuth() oauth.Config {
	return oauth.Config{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.OAuthRedirectURL,
	}
}

// Replica returns the durable replica configuration, or false when no
// replica bucket is configured.
func (c *Config) Replica() (volsync.ReplicaConfig, bool) {
	if c.ReplicaBucket == "" {
		return volsync.ReplicaConfig{}, false
	}
	return volsync.ReplicaConfig{
		Bucket:       c.ReplicaBucket,
		Key:          c.ReplicaKey,
		Region:       c.ReplicaRegion,
		BaseEndpoint: c.ReplicaEndpoint,
		AccessKey:    c.ReplicaAccess,
		SecretKey:    c.ReplicaSecret,
	}, true
}
