// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"go.aimuz.me/voicebridge/internal/logging"
	"go.aimuz.me/voicebridge/langs"
	"go.aimuz.me/voicebridge/llm"
	"go.aimuz.me/voicebridge/stt"
	"go.aimuz.me/voicebridge/tts"
)

const (
	appName        = "voicebridge"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Audio       AudioConfig       `json:"audio"`
	Session     SessionConfig     `json:"session"`
	Speech      SpeechConfig      `json:"speech"`
	Translation TranslationConfig `json:"translation"`
	TTS         TTSConfig         `json:"tts"`
	Language    LanguageConfig    `json:"language"`
	Log         logging.Config    `json:"log"`

	path string
}

// ServerConfig configures the HTTP action surface.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// AudioConfig configures microphone capture. Durations are in seconds.
type AudioConfig struct {
	Recorder        string  `json:"recorder"`
	Device          string  `json:"device,omitempty"`
	SampleRate      int     `json:"sample_rate"`
	EnergyThreshold float64 `json:"energy_threshold"`
	DynamicEnergy   bool    `json:"dynamic_energy"`
	PauseThreshold  float64 `json:"pause_threshold"`
	PhraseTimeLimit float64 `json:"phrase_time_limit"`
}

// SessionConfig configures the continuous session. Durations are in seconds.
type SessionConfig struct {
	AutoTranslate     bool    `json:"auto_translate"`
	CaptureTimeout    float64 `json:"capture_timeout"`
	CalibrateDuration float64 `json:"calibrate_duration"`
	UtteranceTimeout  float64 `json:"utterance_timeout"`
	MaxWorkers        int64   `json:"max_workers"`
	HistorySize       int     `json:"history_size"`
}

// SpeechConfig configures recognition engines.
type SpeechConfig struct {
	Engines       []string           `json:"engines"` // tried in order
	MinTextLength int                `json:"min_text_length"`
	Whisper       WhisperLocalConfig `json:"whisper"`
	API           RemoteAPIConfig    `json:"api"`
	Sphinx        SphinxConfig       `json:"sphinx"`
}

// WhisperLocalConfig configures whisper.cpp.
type WhisperLocalConfig struct {
	BinPath   string `json:"bin_path,omitempty"`
	ModelSize string `json:"model_size"`
	ModelDir  string `json:"model_dir,omitempty"`
	Threads   int    `json:"threads,omitempty"`
}

// RemoteAPIConfig configures an OpenAI audio endpoint.
type RemoteAPIConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// SphinxConfig configures pocketsphinx.
type SphinxConfig struct {
	BinPath   string   `json:"bin_path,omitempty"`
	HMM       string   `json:"hmm,omitempty"`
	Dict      string   `json:"dict,omitempty"`
	LM        string   `json:"lm,omitempty"`
	Languages []string `json:"languages"`
}

// TranslationConfig configures the translation service and its cache.
type TranslationConfig struct {
	Provider        string   `json:"provider"` // "openai", "openai-compatible", "claude", "gemini"
	APIKey          string   `json:"api_key,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	Model           string   `json:"model"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"` // nil selects the default, 0 is kept
	DisableThinking bool     `json:"disable_thinking,omitempty"`
	Timeout         float64  `json:"timeout"`     // seconds per request
	MaxRetries      int      `json:"max_retries"` // attempts per translation
	RetryDelay      float64  `json:"retry_delay"` // seconds between attempts
	CacheSize       int      `json:"cache_size"`
	CacheDir        string   `json:"cache_dir,omitempty"` // persistent cache, disabled when empty
	CacheTTLHours   int      `json:"cache_ttl_hours,omitempty"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Engine   string          `json:"engine"` // "remote" or "local"
	Slow     bool            `json:"slow"`
	Remote   RemoteAPIConfig `json:"remote"`
	Voice    string          `json:"voice"`
	LocalBin string          `json:"local_bin"`
	Rate     int             `json:"rate"`   // words per minute
	Volume   float64         `json:"volume"` // 0..1
}

// LanguageConfig configures the language catalog.
type LanguageConfig struct {
	Fallback      string `json:"fallback"`
	DefaultSource string `json:"default_source"`
	DefaultTarget string `json:"default_target"`
}

// Load reads .env, then the config file in the user config directory.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path. Fields missing from the file keep
// their defaults; environment overrides are applied last.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save persists the configuration to the path it was loaded from, or the
// default location.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.path = path
	return nil
}

// Path returns the file the configuration is bound to.
func (c *Config) Path() string {
	return c.path
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if _, err := c.SpeechEngines(); err != nil {
		errs = append(errs, err)
	}
	if _, err := tts.ParseEngine(c.TTS.Engine); err != nil {
		errs = append(errs, fmt.Errorf("tts.engine: %w", err))
	}
	if err := validateTranslation(c.Translation); err != nil {
		errs = append(errs, err)
	}
	if c.TTS.Volume < 0 || c.TTS.Volume > 1 {
		errs = append(errs, fmt.Errorf("tts.volume must be within 0..1, got %v", c.TTS.Volume))
	}

	return errors.Join(errs...)
}

// SpeechEngines returns the configured recognition order.
func (c *Config) SpeechEngines() ([]stt.Engine, error) {
	engines := make([]stt.Engine, 0, len(c.Speech.Engines))
	for _, name := range c.Speech.Engines {
		e, err := stt.ParseEngine(name)
		if err != nil {
			return nil, fmt.Errorf("speech.engines: %w", err)
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// Seconds converts a seconds setting to a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Helper functions

func validateTranslation(t TranslationConfig) error {
	switch llm.Provider(t.Provider) {
	case llm.ProviderOpenAI, llm.ProviderClaude, llm.ProviderGemini:
	case llm.ProviderOpenAICompatible:
		if t.BaseURL == "" {
			return errors.New("translation.base_url is required for openai-compatible")
		}
	default:
		return fmt.Errorf("translation.provider: unknown provider %q", t.Provider)
	}
	if t.Model == "" {
		return errors.New("translation.model is required")
	}
	return nil
}

func applyDefaults(c *Config) {
	def := Default()
	if c.Translation.MaxTokens == 0 {
		c.Translation.MaxTokens = def.Translation.MaxTokens
	}
	if c.Translation.Temperature == nil {
		c.Translation.Temperature = def.Translation.Temperature
	}
	if c.Language.Fallback == "" {
		c.Language.Fallback = langs.DefaultFallback
	}
	if len(c.Speech.Engines) == 0 {
		c.Speech.Engines = def.Speech.Engines
	}
}

// applyEnv overrides secrets and deployment settings from the environment.
func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Speech.API.APIKey = key
		c.TTS.Remote.APIKey = key
		if c.Translation.APIKey == "" && c.Translation.Provider == string(llm.ProviderOpenAI) {
			c.Translation.APIKey = key
		}
	}
	if key := os.Getenv("VOICEBRIDGE_TRANSLATE_API_KEY"); key != "" {
		c.Translation.APIKey = key
	}
	if addr := os.Getenv("VOICEBRIDGE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("VOICEBRIDGE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Default returns the default configuration.
func Default() *Config {
	temperature := 0.3
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			AllowedOrigins: []string{"*"},
		},
		Audio: AudioConfig{
			Recorder:        "arecord",
			SampleRate:      16000,
			EnergyThreshold: 300,
			DynamicEnergy:   true,
			PauseThreshold:  0.8,
			PhraseTimeLimit: 10,
		},
		Session: SessionConfig{
			AutoTranslate:     true,
			CaptureTimeout:    1,
			CalibrateDuration: 1,
			UtteranceTimeout:  60,
			MaxWorkers:        4,
			HistorySize:       20,
		},
		Speech: SpeechConfig{
			Engines:       []string{"whisper-local", "whisper-api", "pocketsphinx"},
			MinTextLength: stt.DefaultMinTextLength,
			Whisper:       WhisperLocalConfig{ModelSize: "base"},
			API:           RemoteAPIConfig{Model: "whisper-1"},
			Sphinx:        SphinxConfig{Languages: []string{"en"}},
		},
		Translation: TranslationConfig{
			Provider:    string(llm.ProviderOpenAI),
			Model:       "gpt-4o-mini",
			MaxTokens:   1000,
			Temperature: &temperature,
			Timeout:     30,
			MaxRetries:  3,
			RetryDelay:  1,
			CacheSize:   100,
		},
		TTS: TTSConfig{
			Engine:   tts.EngineRemote.String(),
			Remote:   RemoteAPIConfig{Model: "tts-1"},
			Voice:    "alloy",
			LocalBin: "espeak-ng",
			Rate:     150,
			Volume:   0.9,
		},
		Language: LanguageConfig{
			Fallback:      langs.DefaultFallback,
			DefaultSource: "es",
			DefaultTarget: "en",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}
