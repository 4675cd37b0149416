package config

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretCacheTTL bounds how long a fetched secret document is reused.
const secretCacheTTL = 5 * time.Minute

// AWSSecretsProvider implements Provider using AWS Secrets Manager. The
// secret is a JSON object of string values.
type AWSSecretsProvider struct {
	client      SecretsAPI
	secretName  string
	environment Environment

	mu        sync.Mutex
	cache     map[string]string
	lastFetch time.Time
	now       func() time.Time
}

// NewAWSSecretsProvider creates a new AWS Secrets Manager based configuration provider
func NewAWSSecretsProvider(secretName string) (Provider, error) {
	// Load AWS configuration
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsProviderWithClient(secretsmanager.NewFromConfig(cfg), secretName), nil
}

// NewAWSSecretsProviderWithClient creates a provider around an existing client
func NewAWSSecretsProviderWithClient(client SecretsAPI, secretName string) *AWSSecretsProvider {
	return &AWSSecretsProvider{
		client:      client,
		secretName:  secretName,
		environment: currentEnvironment(),
		now:         time.Now,
	}
}

// GetEnvironment returns the current environment
func (p *AWSSecretsProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetString(ctx context.Context, key string) (string, error) {
	secrets, err := p.secrets(ctx)
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret key %s: %w", key, ErrNotSet)
	}
	return value, nil
}

func (p *AWSSecretsProvider) secrets(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil && p.now().Sub(p.lastFetch) < secretCacheTTL {
		return p.cache, nil
	}

	secret, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", p.secretName)
	}

	var secretMap map[string]string
	if err := json.Unmarshal([]byte(*secret.SecretString), &secretMap); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}
	if err := validateSecretSchema(secretMap, p.environment); err != nil {
		return nil, fmt.Errorf("invalid secret schema: %w", err)
	}

	p.cache = secretMap
	p.lastFetch = p.now()
	return secretMap, nil
}

// GetInt retrieves an integer configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intFrom(ctx, p, key)
}

// GetBool retrieves a boolean configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolFrom(ctx, p, key)
}

// GetSecret retrieves a secret value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

var databaseSecretKeys = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
	"DB_SSLMODE",
}

// validateSecretSchema validates database credentials when the secret
// carries any. A secret holding only application keys is accepted as is.
func validateSecretSchema(secrets map[string]string, env Environment) error {
	hasDatabase := false
	for _, key := range databaseSecretKeys {
		if _, ok := secrets[key]; ok {
			hasDatabase = true
			break
		}
	}
	if !hasDatabase {
		return nil
	}

	for _, key := range databaseSecretKeys {
		if _, ok := secrets[key]; !ok {
			return &ValidationError{Field: key, Message: "required secret key not found"}
		}
	}

	if _, err := strconv.Atoi(secrets["DB_PORT"]); err != nil {
		return &ValidationError{Field: "DB_PORT", Message: "port must be a valid number"}
	}
	if !validSSLModes[secrets["DB_SSLMODE"]] {
		return &ValidationError{Field: "DB_SSLMODE", Message: "invalid SSL mode"}
	}

	if env == Production {
		if strings.ToLower(secrets["DB_HOST"]) == "localhost" {
			return &ValidationError{Field: "DB_HOST", Message: "localhost is not allowed in production"}
		}
		if secrets["DB_SSLMODE"] == "disable" {
			return &ValidationError{Field: "DB_SSLMODE", Message: "SSL cannot be disabled in production"}
		}
		if msg := checkProductionPassword(secrets["DB_PASSWORD"]); msg != "" {
			return &ValidationError{Field: "DB_PASSWORD", Message: msg}
		}
	}
	return nil
}

var passwordRules = []struct {
	re  *regexp.Regexp
	msg string
}{
	{regexp.MustCompile(`[A-Z]`), "password must contain at least one uppercase letter in production"},
	{regexp.MustCompile(`[a-z]`), "password must contain at least one lowercase letter in production"},
	{regexp.MustCompile(`[0-9]`), "password must contain at least one number in production"},
	{regexp.MustCompile(`[^A-Za-z0-9]`), "password must contain at least one special character in production"},
}

// checkProductionPassword returns the first violated rule, or "".
func checkProductionPassword(password string) string {
	if len(password) < 12 {
		return "password must be at least 12 characters long in production"
	}
	for _, rule := range passwordRules {
		if !rule.re.MatchString(password) {
			return rule.msg
		}
	}
	return ""
}
