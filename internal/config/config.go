package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	AppName        = "ElevenLabs CLI"
	AppDescription = "A terminal client for ElevenLabs text-to-speech with streaming playback"

	ConfigDir      = ".config/elevenlabs"
	ConfigFileName = "config.yml"

	DefaultModelID      = "eleven_v3"
	DefaultOutputFormat = "mp3_44100_128"
	DefaultVolume       = 70
	MinVolume           = 0
	MaxVolume           = 100
)

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/steipete/elevenlabskit/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

type Config struct {
	APIKey       string `yaml:"api_key"`
	VoiceID      string `yaml:"voice_id"`
	ModelID      string `yaml:"model_id"`
	OutputFormat string `yaml:"output_format"`
	LatencyTier  int    `yaml:"latency_tier"`
	Volume       int    `yaml:"volume"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironment()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.applyEnvironment()

	return cfg, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		ModelID:      DefaultModelID,
		OutputFormat: DefaultOutputFormat,
		Volume:       DefaultVolume,
	}
}

// applyEnvironment overrides credentials from the environment. The aliases
// match what other ElevenLabs tooling commonly sets.
func (c *Config) applyEnvironment() {
	if key := APIKeyFromEnvironment(); key != "" {
		c.APIKey = key
	}
	if voice := VoiceIDFromEnvironment(); voice != "" {
		c.VoiceID = voice
	}
}

// APIKeyFromEnvironment returns the first non-empty API key env var.
func APIKeyFromEnvironment() string {
	return firstEnv("ELEVENLABS_API_KEY", "XI_API_KEY", "ELEVEN_API_KEY")
}

// VoiceIDFromEnvironment returns the first non-empty voice ID env var.
func VoiceIDFromEnvironment() string {
	return firstEnv("ELEVENLABS_VOICE_ID", "XI_VOICE_ID")
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return ""
}
