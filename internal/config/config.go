package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-gateway/internal/auth"

	"github.com/caarlos0/env/v11"
)

// Config holds the BFF server settings.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	AWSRegion           string `env:"AWS_REGION" envDefault:"us-east-1"`
	CognitoUserPoolID   string `env:"COGNITO_USER_POOL_ID"`
	CognitoClientID     string `env:"COGNITO_CLIENT_ID"`
	CognitoClientSecret string `env:"COGNITO_CLIENT_SECRET"`
	CognitoDomain       string `env:"COGNITO_DOMAIN"`

	DeploymentURL    string   `env:"DEPLOYMENT_URL" envDefault:"http://localhost:3000"`
	EnabledProviders []string `env:"ENABLED_PROVIDERS" envDefault:"Google,Microsoft" envSeparator:","`

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"redis"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DynamoDBTable string `env:"DYNAMODB_TABLE" envDefault:"SchoolSageAITable"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	CallbackGracePeriod  time.Duration `env:"CALLBACK_GRACE_PERIOD" envDefault:"1s"`
	CallbackFailureDelay time.Duration `env:"CALLBACK_FAILURE_DELAY" envDefault:"2s"`
}

// TriggerConfig holds the settings shared by the Cognito Lambda triggers.
type TriggerConfig struct {
	DeploymentURL   string `env:"DEPLOYMENT_URL" envDefault:"http://localhost:3000"`
	AppName         string `env:"APP_NAME" envDefault:"SchoolSage"`
	LinkLedgerTable string `env:"LINK_LEDGER_TABLE"`
}

// Load parses the server configuration from the environment and checks
// the values every deployment needs.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DeploymentURL = strings.TrimRight(cfg.DeploymentURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", auth.ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	var errs []error

	required := map[string]string{
		"COGNITO_USER_POOL_ID": c.CognitoUserPoolID,
		"COGNITO_CLIENT_ID":    c.CognitoClientID,
		"COGNITO_DOMAIN":       c.CognitoDomain,
		"DEPLOYMENT_URL":       c.DeploymentURL,
	}
	for _, key := range []string{"COGNITO_USER_POOL_ID", "COGNITO_CLIENT_ID", "COGNITO_DOMAIN", "DEPLOYMENT_URL"} {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	switch c.SessionBackend {
	case "redis", "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be redis or dynamodb, got %q", c.SessionBackend))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.CallbackGracePeriod < 0 || c.CallbackFailureDelay < 0 {
		errs = append(errs, errors.New("callback delays must not be negative"))
	}

	return errors.Join(errs...)
}

// LoadTrigger parses the Lambda trigger configuration.
func LoadTrigger() (TriggerConfig, error) {
	var cfg TriggerConfig
	if err := env.Parse(&cfg); err != nil {
		return TriggerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DeploymentURL = strings.TrimRight(cfg.DeploymentURL, "/")
	return cfg, nil
}
