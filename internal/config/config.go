// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./concierge.yaml, ~/.concierge/concierge.yaml,
//     /etc/concierge/concierge.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: listen address, CORS, proxy trust, rate limiting
//   - Corpus: knowledge file location
//   - Backend: OpenAI-compatible completion endpoint and call deadline
//   - LED: kiosk LED device service (optional)
//   - Agent: conversational-agent provisioning credentials
//   - Tracing: OTLP trace export
//
// Security: sensitive values (API keys, credentials) are masked in
// String()/MarshalJSON and must never reach logs unmasked.
//
// Error handling uses sentinel errors checked with errors.Is(), wrapped with
// context via fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidAddr indicates the listen address is not host:port.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrMissingCorpusPath indicates no corpus file is configured.
	ErrMissingCorpusPath = errors.New("missing corpus path")

	// ErrInvalidBackendURL indicates the completion endpoint is not set.
	ErrInvalidBackendURL = errors.New("invalid backend base URL")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRateBurst indicates the rate limiter burst is out of range.
	ErrInvalidRateBurst = errors.New("invalid rate burst")

	// ErrMissingAgentCredentials indicates provisioning credentials are
	// incomplete.
	ErrMissingAgentCredentials = errors.New("missing agent credentials")

	// ErrMissingRelayURL indicates the agent has no relay endpoint to point
	// its LLM section at.
	ErrMissingRelayURL = errors.New("missing relay URL")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the host:port the relay listens on.
	Addr string `mapstructure:"addr" json:"addr"`

	// CORSOrigins lists allowed browser origins. Empty disables CORS
	// headers entirely.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// TrustProxy enables X-Real-IP/X-Forwarded-For handling. Set true only
	// behind a reverse proxy.
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`

	// RateBurst is the per-client rate limiter burst size.
	RateBurst int `mapstructure:"rate_burst" json:"rate_burst"`
}

// CorpusConfig locates the knowledge text.
type CorpusConfig struct {
	// Path to the plain-text corpus file.
	Path string `mapstructure:"path" json:"path"`
}

// BackendConfig holds the completion backend settings.
type BackendConfig struct {
	// BaseURL of the OpenAI-compatible API.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// APIKey is the bearer token for the backend. SENSITIVE: masked in
	// MarshalJSON.
	APIKey string `mapstructure:"api_key" json:"api_key" sensitive:"true"`

	// TimeoutSeconds bounds one full streaming call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the streaming call deadline as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// MarshalJSON masks the API key.
func (b BackendConfig) MarshalJSON() ([]byte, error) {
	type alias BackendConfig
	a := alias(b)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal backend config: %w", err)
	}
	return data, nil
}

// LEDConfig holds the kiosk LED device service settings.
type LEDConfig struct {
	// URL of the LED service. Empty disables the emotion side channel.
	URL string `mapstructure:"url" json:"url"`

	// TimeoutSeconds bounds one device call; the device is best-effort and
	// must never stall a stream.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Enabled reports whether a device service is configured.
func (l LEDConfig) Enabled() bool {
	return l.URL != ""
}

// Timeout returns the device call deadline as a duration.
func (l LEDConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// AgentConfig holds conversational-agent provisioning settings.
type AgentConfig struct {
	// BaseURL of the provisioning REST API.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// AppID is the project identifier in the provisioning API path.
	AppID string `mapstructure:"app_id" json:"app_id"`

	// CustomerKey and CustomerSecret form the Basic auth pair.
	// SENSITIVE: masked in MarshalJSON.
	CustomerKey    string `mapstructure:"customer_key" json:"customer_key" sensitive:"true"`
	CustomerSecret string `mapstructure:"customer_secret" json:"customer_secret" sensitive:"true"`

	// Channel settings for the voice session.
	Channel       string   `mapstructure:"channel" json:"channel"`
	Token         string   `mapstructure:"token" json:"token" sensitive:"true"`
	AgentRTCUID   string   `mapstructure:"agent_rtc_uid" json:"agent_rtc_uid"`
	RemoteRTCUIDs []string `mapstructure:"remote_rtc_uids" json:"remote_rtc_uids"`

	// IdleTimeout in seconds before the agent leaves an idle channel.
	IdleTimeout int `mapstructure:"idle_timeout" json:"idle_timeout"`

	// MaxHistory is the conversation turns the agent keeps.
	MaxHistory int `mapstructure:"max_history" json:"max_history"`

	// RelayURL is the public chat completions endpoint of this relay, the
	// URL the agent's LLM section points at.
	RelayURL string `mapstructure:"relay_url" json:"relay_url"`

	// LLMModel the agent requests from the relay.
	LLMModel string `mapstructure:"llm_model" json:"llm_model"`

	// TTS settings. The vendor key is SENSITIVE.
	TTSAPIKey string `mapstructure:"tts_api_key" json:"tts_api_key" sensitive:"true"`
	TTSModel  string `mapstructure:"tts_model" json:"tts_model"`
	TTSVoice  string `mapstructure:"tts_voice" json:"tts_voice"`

	// ASR settings. The vendor key is SENSITIVE.
	ASRAPIKey   string `mapstructure:"asr_api_key" json:"asr_api_key" sensitive:"true"`
	ASRLanguage string `mapstructure:"asr_language" json:"asr_language"`
}

// MarshalJSON masks credentials and vendor keys.
func (a AgentConfig) MarshalJSON() ([]byte, error) {
	type alias AgentConfig
	v := alias(a)
	v.CustomerKey = maskSecret(v.CustomerKey)
	v.CustomerSecret = maskSecret(v.CustomerSecret)
	v.Token = maskSecret(v.Token)
	v.TTSAPIKey = maskSecret(v.TTSAPIKey)
	v.ASRAPIKey = maskSecret(v.ASRAPIKey)
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal agent config: %w", err)
	}
	return data, nil
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector address (host:port). Empty
	// disables tracing.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// Environment is the deployment environment tag.
	Environment string `mapstructure:"environment" json:"environment"`

	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Enabled reports whether trace export is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new sensitive fields, update the owning struct's MarshalJSON.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Corpus  CorpusConfig  `mapstructure:"corpus" json:"corpus"`
	Backend BackendConfig `mapstructure:"backend" json:"backend"`
	LED     LEDConfig     `mapstructure:"led" json:"led"`
	Agent   AgentConfig   `mapstructure:"agent" json:"agent"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".concierge")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("concierge")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath("/etc/concierge")

	setDefaults()

	viper.SetEnvPrefix("CONCIERGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults carry the day
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", configDir, "/etc/concierge"},
			"config_name", "concierge.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Server defaults (loopback by default; bind wider explicitly)
	viper.SetDefault("server.addr", "127.0.0.1:8000")
	viper.SetDefault("server.cors_origins", []string{})
	viper.SetDefault("server.trust_proxy", false)
	viper.SetDefault("server.rate_burst", 60)

	// Corpus defaults
	viper.SetDefault("corpus.path", "./my_city_info.txt")

	// Backend defaults
	viper.SetDefault("backend.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("backend.timeout_seconds", 60)

	// LED defaults (disabled until a device URL is set)
	viper.SetDefault("led.url", "")
	viper.SetDefault("led.timeout_seconds", 2)

	// Agent defaults
	viper.SetDefault("agent.base_url", "https://api.agora.io/api/conversational-ai-agent/v2")
	viper.SetDefault("agent.channel", "test")
	viper.SetDefault("agent.agent_rtc_uid", "1001")
	viper.SetDefault("agent.remote_rtc_uids", []string{"1002"})
	viper.SetDefault("agent.idle_timeout", 120)
	viper.SetDefault("agent.max_history", 32)
	viper.SetDefault("agent.llm_model", "llama-3.3-70b-versatile")
	viper.SetDefault("agent.tts_model", "playai-tts")
	viper.SetDefault("agent.tts_voice", "Arista-PlayAI")
	viper.SetDefault("agent.asr_language", "en-US")

	// Tracing defaults (disabled until an endpoint is set)
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "concierge")
}

// bindEnvVariables binds the well-known external variable names for secrets
// alongside the CONCIERGE_* forms.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key string, envVars ...string) {
		if err := viper.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("backend.api_key", "GROQ_API_KEY", "CONCIERGE_BACKEND_API_KEY")

	mustBind("agent.app_id", "AGORA_APP_ID", "CONCIERGE_AGENT_APP_ID")
	mustBind("agent.customer_key", "AGORA_CUSTOMER_KEY", "CONCIERGE_AGENT_CUSTOMER_KEY")
	mustBind("agent.customer_secret", "AGORA_CUSTOMER_SECRET", "CONCIERGE_AGENT_CUSTOMER_SECRET")
	mustBind("agent.token", "AGORA_TOKEN", "CONCIERGE_AGENT_TOKEN")
	mustBind("agent.tts_api_key", "GROQ_TTS_API_KEY", "CONCIERGE_AGENT_TTS_API_KEY")
	mustBind("agent.asr_api_key", "ASSEMBLYAI_API_KEY", "CONCIERGE_AGENT_ASR_API_KEY")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) cannot collide with substrings of real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility. Masking only guards accidental logging; rotate secrets
// if logs are compromised.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON delegates to the section marshalers so every sensitive field
// is masked exactly once.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	data, err := json.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
