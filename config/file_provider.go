package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileProvider implements Provider over a YAML document. Nested maps are
// flattened into upper-case keys joined by '_' and lists into comma lists,
// so
//
//	exec:
//	  allowed_hosts: [api.example.com, example.org]
//
// is read as EXEC_ALLOWED_HOSTS.
type FileProvider struct {
	values      map[string]string
	environment Environment
}

// NewFileProvider loads a YAML configuration file
func NewFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseFileProvider(data)
}

// ParseFileProvider builds a provider from YAML bytes
func ParseFileProvider(data []byte) (*FileProvider, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	values := make(map[string]string)
	flatten("", doc, values)

	env := currentEnvironment()
	if v, ok := values["APP_ENV"]; ok && v != "" {
		env = Environment(v)
	}
	return &FileProvider{values: values, environment: env}, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Keys returns the flattened keys in sorted order
func (p *FileProvider) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetEnvironment returns the configured environment
func (p *FileProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string value from the file
func (p *FileProvider) GetString(ctx context.Context, key string) (string, error) {
	value, ok := p.values[key]
	if !ok || value == "" {
		return "", fmt.Errorf("config key %s: %w", key, ErrNotSet)
	}
	return value, nil
}

// GetInt retrieves an integer value from the file
func (p *FileProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intFrom(ctx, p, key)
}

// GetBool retrieves a boolean value from the file
func (p *FileProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolFrom(ctx, p, key)
}

// GetSecret retrieves a secret value from the file
func (p *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}
