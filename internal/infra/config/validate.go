package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateDatabase(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateCredentials(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.RequestsPerMin <= 0 {
		ve.Add("server.requests_per_min must be > 0")
	}
	switch cfg.Server.Auth.Type {
	case "", "static":
	default:
		ve.Add("server.auth.type %q is not supported (use \"static\")", cfg.Server.Auth.Type)
	}
	for i, tok := range cfg.Server.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("server.auth.tokens[%d].token must not be empty", i)
		}
		if tok.TenantID == "" {
			ve.Add("server.auth.tokens[%d].tenant_id must not be empty", i)
		}
	}
}

func validateDatabase(cfg *Config, ve *ValidationError) {
	if cfg.Database.Path == "" {
		ve.Add("database.path must not be empty")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not valid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not valid (use text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
}

func validateCredentials(cfg *Config, ve *ValidationError) {
	if cfg.Credentials.KeychainEnabled && cfg.Credentials.KeychainPath == "" {
		ve.Add("credentials.keychain_path required when keychain is enabled")
	}
	if cfg.Credentials.Nango.SecretKey != "" && cfg.Credentials.Nango.Host == "" {
		ve.Add("credentials.nango.host required when a secret key is configured")
	}
}
