package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CoreConfig holds the settings consumed by the tree, converter and runner
// services and by the process wiring.
type CoreConfig struct {
	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`

	ImportMaxItems int `validate:"min=1"`

	ExecDefaultTimeoutMs int      `validate:"min=1000"`
	ExecMaxTimeoutMs     int      `validate:"min=1000,gtefield=ExecDefaultTimeoutMs"`
	ExecMaxResponseBytes int64    `validate:"min=1"`
	ExecAllowedHosts     []string `validate:"dive,min=1"`
	// ExecOutboundPerSecond caps outbound calls process-wide; 0 disables.
	ExecOutboundPerSecond int `validate:"min=0"`

	RunnerRateLimit    int `validate:"min=1"`
	RunnerRateWindowMs int `validate:"min=1"`
	ImportRateLimit    int `validate:"min=1"`
	ImportRateWindowMs int `validate:"min=1"`

	StoreDriver string `validate:"oneof=memory sqlite postgres"`
	SQLitePath  string
	CacheDriver string `validate:"oneof=none memory redis dynamodb"`
	CacheTTL    time.Duration
	RedisAddr   string `validate:"required_if=CacheDriver redis"`
	DynamoTable string `validate:"required_if=CacheDriver dynamodb"`
	ListenAddr  string `validate:"required"`
}

// DefaultCoreConfig returns the configuration used when nothing is set.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		LogLevel:             "info",
		ImportMaxItems:       2000,
		ExecDefaultTimeoutMs: 20000,
		ExecMaxTimeoutMs:     120000,
		ExecMaxResponseBytes: 10 << 20,
		RunnerRateLimit:      30,
		RunnerRateWindowMs:   60000,
		ImportRateLimit:      5,
		ImportRateWindowMs:   60000,
		StoreDriver:          "memory",
		CacheDriver:          "memory",
		CacheTTL:             5 * time.Minute,
		DynamoTable:          "RequestTreeCache",
		ListenAddr:           ":8080",
	}
}

// ExecDefaultTimeout returns the default execution timeout.
func (c *CoreConfig) ExecDefaultTimeout() time.Duration {
	return time.Duration(c.ExecDefaultTimeoutMs) * time.Millisecond
}

// ExecMaxTimeout returns the largest accepted execution timeout.
func (c *CoreConfig) ExecMaxTimeout() time.Duration {
	return time.Duration(c.ExecMaxTimeoutMs) * time.Millisecond
}

// RunnerRateWindow returns the execute rate-limit window.
func (c *CoreConfig) RunnerRateWindow() time.Duration {
	return time.Duration(c.RunnerRateWindowMs) * time.Millisecond
}

// ImportRateWindow returns the import rate-limit window.
func (c *CoreConfig) ImportRateWindow() time.Duration {
	return time.Duration(c.ImportRateWindowMs) * time.Millisecond
}

var configValidator = validator.New()

// Validate checks the configuration, reporting the first violation as a
// *ValidationError.
func (c *CoreConfig) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
		}
		return &ValidationError{Field: fe.Field(), Message: msg}
	}
	return err
}

// LoadCoreConfig reads every core key from the provider on top of the
// defaults and validates the result. Keys the provider does not know keep
// their default.
func LoadCoreConfig(ctx context.Context, p Provider) (*CoreConfig, error) {
	cfg := DefaultCoreConfig()
	l := loader{ctx: ctx, p: p}

	l.setString("LOG_LEVEL", &cfg.LogLevel)
	l.setInt("IMPORT_MAX_ITEMS", &cfg.ImportMaxItems)
	l.setInt("EXEC_DEFAULT_TIMEOUT_MS", &cfg.ExecDefaultTimeoutMs)
	l.setInt("EXEC_MAX_TIMEOUT_MS", &cfg.ExecMaxTimeoutMs)
	l.setInt64("EXEC_MAX_RESPONSE_BYTES", &cfg.ExecMaxResponseBytes)
	l.setList("EXEC_ALLOWED_HOSTS", &cfg.ExecAllowedHosts)
	l.setInt("EXEC_OUTBOUND_PER_SECOND", &cfg.ExecOutboundPerSecond)
	l.setInt("RUNNER_RATE_LIMIT", &cfg.RunnerRateLimit)
	l.setInt("RUNNER_RATE_WINDOW_MS", &cfg.RunnerRateWindowMs)
	l.setInt("IMPORT_RATE_LIMIT", &cfg.ImportRateLimit)
	l.setInt("IMPORT_RATE_WINDOW_MS", &cfg.ImportRateWindowMs)
	l.setString("STORE_DRIVER", &cfg.StoreDriver)
	l.setString("SQLITE_PATH", &cfg.SQLitePath)
	l.setString("CACHE_DRIVER", &cfg.CacheDriver)
	l.setDuration("CACHE_TTL", &cfg.CacheTTL)
	l.setString("REDIS_ADDR", &cfg.RedisAddr)
	l.setString("DYNAMO_TABLE", &cfg.DynamoTable)
	l.setString("LISTEN_ADDR", &cfg.ListenAddr)

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loader keeps the first parse error so LoadCoreConfig reads linearly.
type loader struct {
	ctx context.Context
	p   Provider
	err error
}

func (l *loader) raw(key string) (string, bool) {
	if l.err != nil {
		return "", false
	}
	value, err := l.p.GetString(l.ctx, key)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (l *loader) setString(key string, dst *string) {
	if v, ok := l.raw(key); ok {
		*dst = v
	}
}

func (l *loader) setInt(key string, dst *int) {
	if v, ok := l.raw(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.err = &ValidationError{Field: key, Message: "must be an integer"}
			return
		}
		*dst = n
	}
}

func (l *loader) setInt64(key string, dst *int64) {
	if v, ok := l.raw(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			l.err = &ValidationError{Field: key, Message: "must be an integer"}
			return
		}
		*dst = n
	}
}

func (l *loader) setDuration(key string, dst *time.Duration) {
	if v, ok := l.raw(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.err = &ValidationError{Field: key, Message: "must be a duration"}
			return
		}
		*dst = d
	}
}

// setList splits a comma list, lower-casing entries and dropping blanks.
func (l *loader) setList(key string, dst *[]string) {
	if v, ok := l.raw(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}
