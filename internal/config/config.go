package config

import (
	"fmt"

	"identity-link/internal/auth"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AWSRegion            string `env:"COGNITO_AWS_REGION"`
	UserPool             string `env:"COGNITO_USER_POOL_ID"`
	AWSAccessKeyID       string `env:"COGNITO_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey   string `env:"COGNITO_AWS_SECRET_ACCESS_KEY"`
	CognitoEndpoint      string `env:"COGNITO_ENDPOINT"`
	DefaultLocalTypeName string `env:"DEFAULT_LOCAL_TYPE"`
	SkipModelHooks       bool   `env:"SKIP_MODEL_HOOKS" envDefault:"false"`
	TokenQueryParam      string `env:"TOKEN_QUERY_PARAM"`
	PasswordMinLength    int    `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordMaxLength    int    `env:"PASSWORD_MAX_LENGTH" envDefault:"16"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that are wrong regardless of which features run.
// Required values are checked by their accessors at first use.
func (c Config) Validate() error {
	if c.PasswordMinLength < 4 {
		return fmt.Errorf("config: PASSWORD_MIN_LENGTH must be at least 4, got %d", c.PasswordMinLength)
	}
	if c.PasswordMaxLength < c.PasswordMinLength {
		return fmt.Errorf("config: PASSWORD_MAX_LENGTH (%d) is below PASSWORD_MIN_LENGTH (%d)",
			c.PasswordMaxLength, c.PasswordMinLength)
	}
	return nil
}

func (c Config) Region() (string, error) {
	return required("COGNITO_AWS_REGION", c.AWSRegion)
}

func (c Config) UserPoolID() (string, error) {
	return required("COGNITO_USER_POOL_ID", c.UserPool)
}

func (c Config) DefaultLocalType() (string, error) {
	return required("DEFAULT_LOCAL_TYPE", c.DefaultLocalTypeName)
}

// Credentials returns the static key pair. Both empty means the ambient AWS
// credential chain is used.
func (c Config) Credentials() (accessKeyID, secretAccessKey string, err error) {
	switch {
	case c.AWSAccessKeyID == "" && c.AWSSecretAccessKey == "":
		return "", "", nil
	case c.AWSAccessKeyID == "":
		return "", "", &auth.ConfigurationError{Key: "COGNITO_AWS_ACCESS_KEY_ID"}
	case c.AWSSecretAccessKey == "":
		return "", "", &auth.ConfigurationError{Key: "COGNITO_AWS_SECRET_ACCESS_KEY"}
	}
	return c.AWSAccessKeyID, c.AWSSecretAccessKey, nil
}

func required(key, value string) (string, error) {
	if value == "" {
		return "", &auth.ConfigurationError{Key: key}
	}
	return value, nil
}
