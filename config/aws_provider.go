package config

import (
	"fmt"
	"os"
)

// NewAWSConfigProvider creates a provider backed by the AWS Secrets Manager
// secret named in AWS_SECRET_NAME.
func NewAWSConfigProvider() (Provider, error) {
	// Get secret name from environment variable
	secretName := os.Getenv("AWS_SECRET_NAME")
	if secretName == "" {
		return nil, fmt.Errorf("AWS_SECRET_NAME environment variable: %w", ErrNotSet)
	}

	secretsProvider, err := NewAWSSecretsProvider(secretName)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS secrets provider: %w", err)
	}
	return secretsProvider, nil
}

// NewDefaultProvider chains, in order of precedence, the environment, the
// YAML file named in CONFIG_FILE and, when AWS_SECRET_NAME is set, the AWS
// secret.
func NewDefaultProvider() (Provider, error) {
	providers := []Provider{NewEnvProvider("")}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileProvider, err := NewFileProvider(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		providers = append(providers, fileProvider)
	}

	if os.Getenv("AWS_SECRET_NAME") != "" {
		awsProvider, err := NewAWSConfigProvider()
		if err != nil {
			return nil, err
		}
		providers = append(providers, awsProvider)
	}

	return NewChainProvider(providers...), nil
}
