// Package service provides the business logic layer for managing voice data.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/steipete/elevenlabskit/internal/cache"
	"github.com/steipete/elevenlabskit/internal/config"
	"github.com/steipete/elevenlabskit/internal/voice"
)

// VoiceLister is the part of the API client the service needs.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]voice.Voice, error)
}

// VoiceService manages voice data, including fetching and disk caching.
type VoiceService struct {
	apiClient  VoiceLister
	voiceCache *cache.Cache
	mu         sync.RWMutex
	voices     []voice.Voice
}

// NewVoiceService creates a new VoiceService with the given API client.
func NewVoiceService(apiClient VoiceLister) *VoiceService {
	voiceCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize voice cache, listings will not be cached")
	}

	if voiceCache != nil {
		go func() {
			if err := voiceCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return &VoiceService{
		apiClient:  apiClient,
		voiceCache: voiceCache,
	}
}

// Voices returns the account's voices, serving the disk cache when fresh.
func (s *VoiceService) Voices(ctx context.Context) ([]voice.Voice, error) {
	if s.voiceCache != nil {
		if cached := s.voiceCache.GetVoices(); cached != nil {
			log.Debug().Int("count", len(cached)).Msg("Voices loaded from cache")
			s.store(cached)
			return cached, nil
		}
	}

	voices, err := s.apiClient.ListVoices(ctx)
	if err != nil {
		return nil, err
	}
	s.store(voices)

	if s.voiceCache != nil {
		go func() {
			if err := s.voiceCache.SaveVoices(voices); err != nil {
				log.Debug().Err(err).Msg("Failed to cache voices")
			}
		}()
	}

	return voices, nil
}

// CachedVoices returns a copy of the last listing without hitting the network.
func (s *VoiceService) CachedVoices() []voice.Voice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]voice.Voice, len(s.voices))
	copy(result, s.voices)
	return result
}

// Resolve picks the voice to synthesize with: an explicit ID wins, then the
// environment, then the first voice on the account.
func (s *VoiceService) Resolve(ctx context.Context, voiceID string) (string, error) {
	if voiceID != "" {
		return voiceID, nil
	}
	if envVoice := config.VoiceIDFromEnvironment(); envVoice != "" {
		return envVoice, nil
	}

	voices, err := s.Voices(ctx)
	if err != nil {
		return "", err
	}
	if len(voices) == 0 {
		return "", fmt.Errorf("no voices available")
	}
	return voices[0].ID, nil
}

func (s *VoiceService) store(voices []voice.Voice) {
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
}
