package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8970,
			Bind: "loopback",
		},
		Agent: AgentConfig{
			MaxTokens:     1024,
			HistoryWindow: 20,
		},
		Business: BusinessConfig{
			Currency: "USD",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleLevel: "info",
			ConsoleStyle: "pretty",
		},
		Retry: RetryConfig{
			MaxAttempts:   2,
			DelaySeconds:  30,
			JitterSeconds: 5,
		},
		Processing: ProcessingConfig{
			StaleSeconds: 60,
			SweepSeconds: 15,
		},
	}
}
