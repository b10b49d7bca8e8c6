package config

import (
	"errors"
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *mapBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *mapBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *mapBackend) Delete(key string) error          { delete(b.data, key); return nil }

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.values[account], nil
}

func emptyBackend() *mapBackend {
	return &mapBackend{data: make(map[string]any)}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(emptyBackend(), mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Gemini.BaseURL != "https://generativelanguage.googleapis.com" {
		t.Errorf("Gemini.BaseURL = %q", cfg.Gemini.BaseURL)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("Gemini.APIKey = %q, want empty (optional)", cfg.Gemini.APIKey)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := emptyBackend()
	b.data["server.port"] = 5100
	b.data["gemini.vision_model"] = "custom-vision"
	b.data["storage.data_dir"] = "/tmp/mealwise-test"

	cfg, err := loadWith(b, mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5100 {
		t.Errorf("Server.Port = %d, want 5100", cfg.Server.Port)
	}
	if cfg.Gemini.VisionModel != "custom-vision" {
		t.Errorf("Gemini.VisionModel = %q", cfg.Gemini.VisionModel)
	}
	if cfg.Storage.DataDir != "/tmp/mealwise-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)

	b := emptyBackend()
	b.data["server.port"] = 5100
	t.Setenv("MEALWISE_SERVER_PORT", "6200")
	t.Setenv("MEALWISE_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(b, mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6200 {
		t.Errorf("Server.Port = %d, want env override 6200", cfg.Server.Port)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env-key", cfg.Gemini.APIKey)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := mockKeychain{values: map[string]string{
		"gemini_api_key": "keychain-secret",
		"admin_token":    "keychain-token",
	}}
	cfg, err := loadWith(emptyBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gemini.APIKey != "keychain-secret" {
		t.Errorf("Gemini.APIKey = %q, want keychain-secret", cfg.Gemini.APIKey)
	}
	if cfg.Admin.Token != "keychain-token" {
		t.Errorf("Admin.Token = %q, want keychain-token", cfg.Admin.Token)
	}
}

func TestEnvWinsOverKeychain(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEALWISE_GEMINI_API_KEY", "env-key")

	kc := mockKeychain{values: map[string]string{"gemini_api_key": "keychain-secret"}}
	cfg, err := loadWith(emptyBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env to win", cfg.Gemini.APIKey)
	}
}

func TestShowAll_ExcludesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "should-not-appear"
	cfg.Admin.Token = "nor-this"

	for _, info := range ShowAll(cfg) {
		if strings.Contains(info.Key, "api_key") || strings.Contains(info.Key, "token") {
			t.Errorf("secret key %q exposed by ShowAll", info.Key)
		}
		if info.Value == "should-not-appear" || info.Value == "nor-this" {
			t.Errorf("secret value exposed under key %q", info.Key)
		}
	}
}

func TestValidKeys_ExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "gemini.api_key" || k == "admin.token" {
			t.Errorf("secret key %q listed as settable", k)
		}
	}
}
