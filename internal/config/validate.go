package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertPath == "" || cfg.Server.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "server.tls",
				Message: "certPath and keyPath are required when TLS is enabled",
			})
		}
	}

	if cfg.Business.Name == "" {
		issues = append(issues, ValidationIssue{
			Path:    "business.name",
			Message: "business name is required",
		})
	}

	if cfg.LLM.OpenAI.APIKey == "" && cfg.LLM.Anthropic.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm",
			Message: "at least one provider (openai or anthropic) must be configured",
		})
	}

	validDrivers := []string{"sqlite", "memory"}
	if cfg.Storage.Driver != "" && !slices.Contains(validDrivers, cfg.Storage.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "storage.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Storage.Driver),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	if cfg.Logging.ConsoleLevel != "" && !slices.Contains(validLogLevels, cfg.Logging.ConsoleLevel) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleLevel",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.ConsoleLevel),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	issues = append(issues, validateChannels(&cfg.Channels)...)

	if cfg.Retry.MaxAttempts < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "retry.maxAttempts",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Retry.MaxAttempts),
		})
	}

	return issues
}

func validateChannels(ch *ChannelsConfig) []ValidationIssue {
	var issues []ValidationIssue

	if wa := ch.WhatsApp; wa != nil {
		if wa.AccessToken == "" {
			issues = append(issues, ValidationIssue{Path: "channels.whatsapp.accessToken", Message: "required"})
		}
		if wa.PhoneNumberID == "" {
			issues = append(issues, ValidationIssue{Path: "channels.whatsapp.phoneNumberId", Message: "required"})
		}
		if wa.VerifyToken == "" {
			issues = append(issues, ValidationIssue{Path: "channels.whatsapp.verifyToken", Message: "required"})
		}
	}

	metas := map[string]*MetaChannel{
		"messenger": ch.Messenger,
		"instagram": ch.Instagram,
	}
	for name, mc := range metas {
		if mc == nil {
			continue
		}
		if mc.PageAccessToken == "" {
			issues = append(issues, ValidationIssue{Path: "channels." + name + ".pageAccessToken", Message: "required"})
		}
		if mc.VerifyToken == "" {
			issues = append(issues, ValidationIssue{Path: "channels." + name + ".verifyToken", Message: "required"})
		}
	}

	return issues
}
