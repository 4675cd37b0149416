package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Environment represents the application environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ErrNotSet is returned by providers when a key has no value.
var ErrNotSet = errors.New("config value not set")

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Provider defines the interface for configuration management
type Provider interface {
	// GetString retrieves a string configuration value
	GetString(ctx context.Context, key string) (string, error)
	// GetInt retrieves an integer configuration value
	GetInt(ctx context.Context, key string) (int, error)
	// GetBool retrieves a boolean configuration value
	GetBool(ctx context.Context, key string) (bool, error)
	// GetSecret retrieves a secret value
	GetSecret(ctx context.Context, key string) (string, error)
	// GetEnvironment returns the current environment
	GetEnvironment() Environment
}

func currentEnvironment() Environment {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = string(Development)
	}
	return Environment(env)
}

// EnvProvider implements Provider using environment variables
type EnvProvider struct {
	prefix      string
	environment Environment
}

// NewEnvProvider creates a new environment-based configuration provider
func NewEnvProvider(prefix string) Provider {
	return &EnvProvider{
		prefix:      prefix,
		environment: currentEnvironment(),
	}
}

// GetEnvironment returns the current environment
func (p *EnvProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from environment variables
func (p *EnvProvider) GetString(ctx context.Context, key string) (string, error) {
	value := os.Getenv(p.prefix + key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s%s: %w", p.prefix, key, ErrNotSet)
	}
	return value, nil
}

// GetInt retrieves an integer configuration value from environment variables
func (p *EnvProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intFrom(ctx, p, key)
}

// GetBool retrieves a boolean configuration value from environment variables
func (p *EnvProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolFrom(ctx, p, key)
}

// GetSecret retrieves a secret value from environment variables
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

// ChainProvider asks each provider in order and returns the first value
// found. The environment is taken from the first provider.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a provider that falls through the given providers
func NewChainProvider(providers ...Provider) Provider {
	return &ChainProvider{providers: providers}
}

// GetEnvironment returns the environment of the first provider
func (c *ChainProvider) GetEnvironment() Environment {
	if len(c.providers) == 0 {
		return currentEnvironment()
	}
	return c.providers[0].GetEnvironment()
}

// GetString returns the first value found
func (c *ChainProvider) GetString(ctx context.Context, key string) (string, error) {
	var lastErr error = fmt.Errorf("%s: %w", key, ErrNotSet)
	for _, p := range c.providers {
		value, err := p.GetString(ctx, key)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// GetInt returns the first integer found
func (c *ChainProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intFrom(ctx, c, key)
}

// GetBool returns the first boolean found
func (c *ChainProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolFrom(ctx, c, key)
}

// GetSecret returns the first secret found
func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error = fmt.Errorf("%s: %w", key, ErrNotSet)
	for _, p := range c.providers {
		value, err := p.GetSecret(ctx, key)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func intFrom(ctx context.Context, p Provider, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func boolFrom(ctx context.Context, p Provider, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}
