package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Audit     *AuditConfig     `json:"audit"`
	AI        *AIConfig        `json:"ai"`
	Upload    *UploadConfig    `json:"upload"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
	Log       *LogConfig       `json:"log"`
}

// FUNCTIONAL DISCOVERY: PublicURL is what invite links are built from; it can
// differ from the bind address behind a proxy
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
	PublicURL    string        `json:"public_url"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuditConfig configures the SQLite audit trail; an empty Path disables it
type AuditConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// AIConfig configures the language model collaborator
type AIConfig struct {
	APIKey      string        `json:"-"`
	BaseURL     string        `json:"base_url"`
	ChatModel   string        `json:"chat_model"`
	VisionModel string        `json:"vision_model"`
	Timeout     time.Duration `json:"timeout"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type UploadConfig struct {
	Dir      string `json:"dir"`
	MaxBytes int64  `json:"max_bytes"`
}

// FUNCTIONAL DISCOVERY: Fixed window counter per source address
type RateLimitConfig struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "console" or "json"
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
			PublicURL:    "http://localhost:8080",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Audit: &AuditConfig{
			Path:    "./medroom-audit.db",
			Timeout: 30 * time.Second,
		},
		AI: &AIConfig{
			BaseURL:     "",
			ChatModel:   "gpt-4o-mini",
			VisionModel: "gpt-4o-mini",
			Timeout:     60 * time.Second,
			Temperature: 0.3,
			MaxTokens:   1200,
		},
		Upload: &UploadConfig{
			Dir:      "./uploads",
			MaxBytes: 10 << 20,
		},
		RateLimit: &RateLimitConfig{
			Max:    10,
			Window: 6 * time.Hour,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate prevents invalid system configurations
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.PublicURL == "" {
		return fmt.Errorf("HTTP public URL cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	// ARCHITECTURAL DISCOVERY: Empty audit path is a valid "disabled" setting
	if c.Audit == nil {
		return fmt.Errorf("audit configuration is required")
	}
	if c.Audit.Path != "" && c.Audit.Timeout <= 0 {
		return fmt.Errorf("audit timeout must be positive")
	}

	if c.AI == nil {
		return fmt.Errorf("AI configuration is required")
	}
	if c.AI.ChatModel == "" {
		return fmt.Errorf("AI chat model cannot be empty")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("AI max tokens must be positive")
	}

	if c.Upload == nil {
		return fmt.Errorf("upload configuration is required")
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("upload directory cannot be empty")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload size cap must be positive")
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'console' or 'json'")
	}
	return nil
}

// LoadFromEnv overlays environment variables on the defaults
func LoadFromEnv() *Config {
	return applyEnv(DefaultConfig())
}

func applyEnv(config *Config) *Config {
	envInt("MEDROOM_HTTP_PORT", &config.HTTP.Port)
	envString("MEDROOM_HTTP_HOST", &config.HTTP.Host)
	envString("MEDROOM_PUBLIC_URL", &config.HTTP.PublicURL)
	envDuration("MEDROOM_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("MEDROOM_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envDuration("MEDROOM_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("MEDROOM_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("MEDROOM_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("MEDROOM_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	// FUNCTIONAL DISCOVERY: LookupEnv so MEDROOM_AUDIT_PATH="" can disable auditing
	if v, ok := os.LookupEnv("MEDROOM_AUDIT_PATH"); ok {
		config.Audit.Path = v
	}
	envDuration("MEDROOM_AUDIT_TIMEOUT", &config.Audit.Timeout)

	envString("OPENAI_API_KEY", &config.AI.APIKey)
	envString("OPENAI_BASE_URL", &config.AI.BaseURL)
	envString("OPENAI_MODEL", &config.AI.ChatModel)
	envString("OPENAI_VISION_MODEL", &config.AI.VisionModel)
	envDuration("MEDROOM_AI_TIMEOUT", &config.AI.Timeout)
	envInt("MEDROOM_AI_MAX_TOKENS", &config.AI.MaxTokens)
	if v := os.Getenv("MEDROOM_AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			config.AI.Temperature = float32(f)
		}
	}

	envString("MEDROOM_UPLOAD_DIR", &config.Upload.Dir)
	if v := os.Getenv("MEDROOM_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Upload.MaxBytes = n
		}
	}

	envInt("RATE_LIMIT_MAX", &config.RateLimit.Max)
	// TECHNICAL DISCOVERY: Window accepts a Go duration ("6h") or plain milliseconds
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateLimit.Window = d
		} else if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.RateLimit.Window = time.Duration(ms) * time.Millisecond
		}
	}

	envString("LOG_LEVEL", &config.Log.Level)
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Log.Format = strings.ToLower(v)
	} else if strings.EqualFold(os.Getenv("ENV"), "production") {
		config.Log.Format = "json"
	}

	return config
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	HTTP *struct {
		Port         int    `json:"port"`
		Host         string `json:"host"`
		PublicURL    string `json:"public_url"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Audit *struct {
		Path    *string `json:"path"`
		Timeout string  `json:"timeout"`
	} `json:"audit"`
	AI *struct {
		BaseURL     string   `json:"base_url"`
		ChatModel   string   `json:"chat_model"`
		VisionModel string   `json:"vision_model"`
		Timeout     string   `json:"timeout"`
		Temperature *float32 `json:"temperature"`
		MaxTokens   int      `json:"max_tokens"`
	} `json:"ai"`
	Upload *struct {
		Dir      string `json:"dir"`
		MaxBytes int64  `json:"max_bytes"`
	} `json:"upload"`
	RateLimit *struct {
		Max    int    `json:"max"`
		Window string `json:"window"`
	} `json:"rate_limit"`
	Log *struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	return loadFileOver(DefaultConfig(), filepath)
}

func loadFileOver(config *Config, filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.PublicURL != "" {
			config.HTTP.PublicURL = file.HTTP.PublicURL
		}
		parseDuration(file.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		parseDuration(file.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if file.WebSocket != nil {
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		parseDuration(file.WebSocket.PingInterval, &config.WebSocket.PingInterval)
		parseDuration(file.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout)
		parseDuration(file.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if file.Audit != nil {
		if file.Audit.Path != nil {
			config.Audit.Path = *file.Audit.Path
		}
		parseDuration(file.Audit.Timeout, &config.Audit.Timeout)
	}

	if file.AI != nil {
		if file.AI.BaseURL != "" {
			config.AI.BaseURL = file.AI.BaseURL
		}
		if file.AI.ChatModel != "" {
			config.AI.ChatModel = file.AI.ChatModel
		}
		if file.AI.VisionModel != "" {
			config.AI.VisionModel = file.AI.VisionModel
		}
		if file.AI.Temperature != nil {
			config.AI.Temperature = *file.AI.Temperature
		}
		if file.AI.MaxTokens > 0 {
			config.AI.MaxTokens = file.AI.MaxTokens
		}
		parseDuration(file.AI.Timeout, &config.AI.Timeout)
	}

	if file.Upload != nil {
		if file.Upload.Dir != "" {
			config.Upload.Dir = file.Upload.Dir
		}
		if file.Upload.MaxBytes > 0 {
			config.Upload.MaxBytes = file.Upload.MaxBytes
		}
	}

	if file.RateLimit != nil {
		if file.RateLimit.Max > 0 {
			config.RateLimit.Max = file.RateLimit.Max
		}
		parseDuration(file.RateLimit.Window, &config.RateLimit.Window)
	}

	if file.Log != nil {
		if file.Log.Level != "" {
			config.Log.Level = file.Log.Level
		}
		if file.Log.Format != "" {
			config.Log.Format = strings.ToLower(file.Log.Format)
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func parseDuration(value string, dst *time.Duration) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence resolves file > environment (.env included) > defaults.
// FUNCTIONAL DISCOVERY: A missing .env or unreadable file silently falls back
// so that a bare container with only env vars still starts
func LoadConfigWithPrecedence(filepath string) *Config {
	_ = godotenv.Load()

	config := LoadFromEnv()
	if filepath != "" {
		if fileConfig, err := loadFileOver(LoadFromEnv(), filepath); err == nil {
			config = fileConfig
		}
	}
	return config
}
