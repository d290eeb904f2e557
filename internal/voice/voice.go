// Package voice defines the data structures for ElevenLabs voices.
package voice

import "strings"

// Voice represents a voice available to the account, as returned by the
// ElevenLabs voices endpoint.
type Voice struct {
	ID          string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	PreviewURL  string            `json:"preview_url"`
	Labels      map[string]string `json:"labels"`
}

// DisplayName returns the voice name, falling back to a placeholder for
// voices the API returns unnamed.
func (v *Voice) DisplayName() string {
	if v.Name == "" {
		return "Unnamed"
	}
	return v.Name
}

// Filter returns the voices whose name or ID contains the query,
// case-insensitively. An empty query returns the input unchanged.
func Filter(voices []Voice, query string) []Voice {
	if query == "" {
		return voices
	}

	q := strings.ToLower(query)
	var matched []Voice
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), q) || strings.Contains(strings.ToLower(v.ID), q) {
			matched = append(matched, v)
		}
	}
	return matched
}

// Limit returns at most n voices. A non-positive n returns the input unchanged.
func Limit(voices []Voice, n int) []Voice {
	if n <= 0 || n >= len(voices) {
		return voices
	}
	return voices[:n]
}

// FindByID returns the index of the voice with the given ID, or -1.
func FindByID(voices []Voice, id string) int {
	for i := range voices {
		if voices[i].ID == id {
			return i
		}
	}
	return -1
}
