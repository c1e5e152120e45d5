// ABOUTME: Tests for environment variable expansion in config
// ABOUTME: Validates ${VAR} replacement for set, unset, and mixed patterns

package config

import (
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_HOST", "localhost")
	t.Setenv("TEST_MODEL", "gpt-4o")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_MODEL}", "gpt-4o"},
		{"https://${TEST_HOST}:8080/api", "https://localhost:8080/api"},
		{"${DEFINITELY_NOT_SET_12345}", ""},
		{"plain string", "plain string"},
		{"$TEST_HOST", "$TEST_HOST"},
		{"${TEST_HOST:-fallback}", "localhost"},
		{"${DEFINITELY_NOT_SET_12345:-redis:6379}", "redis:6379"},
		{"${DEFINITELY_NOT_SET_12345:-}", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveEnvVars_SettingsFields(t *testing.T) {
	t.Setenv("TEST_BASE_URL", "https://api.example.com")
	t.Setenv("TEST_KEY", "sk-1")
	t.Setenv("TEST_REDIS", "redis:6379")

	s := &Settings{
		BaseURL: "${TEST_BASE_URL}/api",
		APIKey:  "${TEST_KEY}",
		Models:  []string{"${TEST_KEY}-model"},
		Redis:   RedisSettings{Addr: "${TEST_REDIS}"},
	}
	ResolveEnvVars(s)

	if s.BaseURL != "https://api.example.com/api" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
	if s.APIKey != "sk-1" {
		t.Errorf("APIKey = %q", s.APIKey)
	}
	if s.Models[0] != "sk-1-model" {
		t.Errorf("Models[0] = %q", s.Models[0])
	}
	if s.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", s.Redis.Addr)
	}
}
