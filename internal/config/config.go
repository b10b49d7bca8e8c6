package config

import (
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	Storage StorageConfig
	Admin   AdminConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type GeminiConfig struct {
	BaseURL     string
	APIKey      string
	VisionModel string
	ImageModel  string
	TextModel   string
}

type StorageConfig struct {
	DataDir string
}

type AdminConfig struct {
	// Token protects the admin API surface. When empty, admin routes
	// reject every request.
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Gemini: GeminiConfig{
			BaseURL:     "https://generativelanguage.googleapis.com",
			VisionModel: "gemini-3-pro-preview",
			ImageModel:  "gemini-2.5-flash-image",
			TextModel:   "gemini-2.5-flash",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a local .env
// file, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.mealwise.app) and the
// Gemini API key falls back to macOS Keychain. On Linux the backend is a
// JSON file at $XDG_CONFIG_HOME/mealwise/config.json and the key falls back
// to a secrets file under $XDG_DATA_HOME/mealwise.
//
// Environment variables (MEALWISE_*) override backend values on all
// platforms. The Gemini key is optional: the tracker and the recommender
// work without it, and the AI endpoints report themselves unconfigured.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("mealwise", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}
	if cfg.Admin.Token == "" {
		if token, err := kc.Get("mealwise", "admin_token"); err == nil && token != "" {
			cfg.Admin.Token = token
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
