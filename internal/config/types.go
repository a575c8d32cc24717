package config

// Config is the root configuration for Tiendi.
type Config struct {
	Server     ServerConfig     `yaml:"server,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Agent      AgentConfig      `yaml:"agent,omitempty"`
	Business   BusinessConfig   `yaml:"business,omitempty"`
	Channels   ChannelsConfig   `yaml:"channels,omitempty"`
	Storage    StorageConfig    `yaml:"storage,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Retry      RetryConfig      `yaml:"retry,omitempty"`
	Processing ProcessingConfig `yaml:"processing,omitempty"`
}

// ServerConfig controls the webhook HTTP server.
type ServerConfig struct {
	Port           int       `yaml:"port,omitempty"`
	Bind           string    `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string    `yaml:"customBindHost,omitempty"`
	TLS            ServerTLS `yaml:"tls,omitempty"`
	// AllowedOrigins restricts browser access to the operator event stream.
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	// AdminToken authenticates the operator event stream and status endpoint.
	AdminToken string `yaml:"adminToken,omitempty"`
}

// ServerTLS configures TLS for the webhook server.
type ServerTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LLMConfig defines completion providers. At least one provider must be
// configured for the agent to run.
type LLMConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"` // override for compatible endpoints
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"apiKey,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// AgentConfig tunes the conversational agent.
type AgentConfig struct {
	Model         string   `yaml:"model,omitempty"` // provider name or model alias
	MaxTokens     int      `yaml:"maxTokens,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	HistoryWindow int      `yaml:"historyWindow,omitempty"`
}

// BusinessConfig identifies the merchant the agent sells for.
type BusinessConfig struct {
	ID       string `yaml:"id,omitempty"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address,omitempty"`
	Phone    string `yaml:"phone,omitempty"`
	Hours    string `yaml:"hours,omitempty"`
	Currency string `yaml:"currency,omitempty"`
}

// ChannelsConfig holds per-platform credentials. A nil entry disables the
// channel.
type ChannelsConfig struct {
	WhatsApp  *WhatsAppChannel `yaml:"whatsapp,omitempty"`
	Messenger *MetaChannel     `yaml:"messenger,omitempty"`
	Instagram *MetaChannel     `yaml:"instagram,omitempty"`
}

// WhatsAppChannel configures the WhatsApp Cloud API channel.
type WhatsAppChannel struct {
	AccessToken   string `yaml:"accessToken"`
	PhoneNumberID string `yaml:"phoneNumberId"`
	// VerifyToken is echoed during the webhook subscription handshake.
	VerifyToken string `yaml:"verifyToken"`
	// AppSecret signs webhook payloads (X-Hub-Signature-256).
	AppSecret string `yaml:"appSecret"`
}

// MetaChannel configures a Messenger or Instagram channel.
type MetaChannel struct {
	PageAccessToken string `yaml:"pageAccessToken"`
	VerifyToken     string `yaml:"verifyToken"`
	AppSecret       string `yaml:"appSecret"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite database file
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleLevel string `yaml:"consoleLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// RetryConfig bounds rate-limit retries in the message pipeline.
type RetryConfig struct {
	MaxAttempts   int `yaml:"maxAttempts,omitempty"`
	DelaySeconds  int `yaml:"delaySeconds,omitempty"`
	JitterSeconds int `yaml:"jitterSeconds,omitempty"`
}

// ProcessingConfig tunes the stale processing-flag sweeper.
type ProcessingConfig struct {
	StaleSeconds int `yaml:"staleSeconds,omitempty"`
	SweepSeconds int `yaml:"sweepSeconds,omitempty"`
}
