package config

import (
	"testing"
)

func TestClampVolume(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-10, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{150, 100},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := ClampVolume(tt.input)
			if result != tt.expected {
				t.Errorf("ClampVolume(%d) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelID != DefaultModelID {
		t.Errorf("ModelID = %q, want %q", cfg.ModelID, DefaultModelID)
	}
	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %q, want %q", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.Volume != DefaultVolume {
		t.Errorf("Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}
	if cfg.APIKey != "" {
		t.Error("Default config should not carry an API key")
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{"primary var", map[string]string{"ELEVENLABS_API_KEY": "key-a"}, "key-a"},
		{"alias var", map[string]string{"XI_API_KEY": "key-b"}, "key-b"},
		{"second alias", map[string]string{"ELEVEN_API_KEY": "key-c"}, "key-c"},
		{"primary wins over alias", map[string]string{"ELEVENLABS_API_KEY": "key-a", "XI_API_KEY": "key-b"}, "key-a"},
		{"whitespace treated as empty", map[string]string{"ELEVENLABS_API_KEY": "  ", "XI_API_KEY": "key-b"}, "key-b"},
		{"nothing set", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{"ELEVENLABS_API_KEY", "XI_API_KEY", "ELEVEN_API_KEY"} {
				t.Setenv(name, "")
			}
			for name, value := range tt.env {
				t.Setenv(name, value)
			}

			result := APIKeyFromEnvironment()
			if result != tt.expected {
				t.Errorf("APIKeyFromEnvironment() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestVoiceIDFromEnvironment(t *testing.T) {
	t.Setenv("ELEVENLABS_VOICE_ID", "")
	t.Setenv("XI_VOICE_ID", "voice-x")

	if got := VoiceIDFromEnvironment(); got != "voice-x" {
		t.Errorf("VoiceIDFromEnvironment() = %q, want %q", got, "voice-x")
	}
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "env-key")
	t.Setenv("XI_API_KEY", "")
	t.Setenv("ELEVEN_API_KEY", "")
	t.Setenv("ELEVENLABS_VOICE_ID", "")
	t.Setenv("XI_VOICE_ID", "")

	cfg := &Config{APIKey: "file-key"}
	cfg.applyEnvironment()

	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey after env override = %q, want %q", cfg.APIKey, "env-key")
	}
}
