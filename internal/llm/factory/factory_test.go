// internal/llm/factory/factory_test.go
package factory

import (
	"errors"
	"testing"

	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
		want string
	}{
		{
			name: "claude",
			cfg:  config.LLMConfig{Provider: "claude", Claude: config.ClaudeConfig{APIKey: "test-key", Model: "claude-3-sonnet"}},
			want: "claude",
		},
		{
			name: "openai",
			cfg:  config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "test-key", Model: "gpt-4"}},
			want: "openai",
		},
		{
			name: "openai by default",
			cfg:  config.LLMConfig{OpenAI: config.OpenAIConfig{APIKey: "test-key"}},
			want: "openai",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("expected %s provider, got %s", tt.want, p.Name())
			}
		})
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "ollama"})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestNew_MissingKey(t *testing.T) {
	for _, provider := range []string{"claude", "openai"} {
		_, err := New(config.LLMConfig{Provider: provider})
		if !errors.Is(err, core.ErrConfigMissing) {
			t.Errorf("%s: expected ErrConfigMissing, got %v", provider, err)
		}
	}
}
