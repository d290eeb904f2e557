// Package cache provides disk-based caching for the voices listing.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/steipete/elevenlabskit/internal/voice"
)

const (
	// DefaultExpiry is how long the cached voices listing is valid.
	DefaultExpiry = 24 * time.Hour
	// VoicesFileName is the cache file for the voices listing.
	VoicesFileName = "voices.json"
	// AppName is used for the cache directory name.
	AppName = "elevenlabs"
)

// Cache manages disk-based caching of API responses that change rarely.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func (c *Cache) ensureDir() error {
	return os.MkdirAll(c.baseDir, 0755)
}

func (c *Cache) voicesPath() string {
	return filepath.Join(c.baseDir, VoicesFileName)
}

// GetVoices retrieves the cached voices listing. Returns nil if the cache is
// missing, expired, or unreadable.
func (c *Cache) GetVoices() []voice.Voice {
	path := c.voicesPath()

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Failed to remove expired cache file")
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var voices []voice.Voice
	if err := json.Unmarshal(data, &voices); err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Failed to decode cached voices")
		return nil
	}

	return voices
}

// SaveVoices stores the voices listing in the cache.
func (c *Cache) SaveVoices(voices []voice.Voice) error {
	if err := c.ensureDir(); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(voices)
	if err != nil {
		return fmt.Errorf("failed to encode voices: %w", err)
	}

	if err := os.WriteFile(c.voicesPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(c.baseDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
