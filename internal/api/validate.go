package api

import (
	"strconv"
	"strings"
)

// Validation helpers for synthesis parameters. Each returns nil when the
// value is absent or out of range, so callers can pass the result straight
// into a Request without branching.

const referenceWPM = 175.0

// ResolveSpeed converts a words-per-minute rate or an explicit speed
// multiplier into a valid speed. The API accepts the open interval
// (0.5, 2.0); rateWPM takes precedence when both are given.
func ResolveSpeed(speed *float64, rateWPM *int) *float64 {
	if rateWPM != nil && *rateWPM > 0 {
		resolved := float64(*rateWPM) / referenceWPM
		if resolved <= 0.5 || resolved >= 2.0 {
			return nil
		}
		return &resolved
	}
	if speed != nil {
		if *speed <= 0.5 || *speed >= 2.0 {
			return nil
		}
		return speed
	}
	return nil
}

// ValidatedUnit accepts values in [0, 1].
func ValidatedUnit(value *float64) *float64 {
	if value == nil || *value < 0 || *value > 1 {
		return nil
	}
	return value
}

// ValidatedStability accepts [0, 1] generally; the eleven_v3 model only
// supports the discrete values 0, 0.5 and 1.
func ValidatedStability(value *float64, modelID string) *float64 {
	if value == nil {
		return nil
	}
	if strings.ToLower(strings.TrimSpace(modelID)) == "eleven_v3" {
		switch *value {
		case 0, 0.5, 1:
			return value
		}
		return nil
	}
	return ValidatedUnit(value)
}

// ValidatedSeed accepts [0, 2^32-1].
func ValidatedSeed(value *int) *uint32 {
	if value == nil || *value < 0 || *value > 4294967295 {
		return nil
	}
	seed := uint32(*value)
	return &seed
}

// ValidatedLatencyTier accepts [0, 4].
func ValidatedLatencyTier(value *int) *int {
	if value == nil || *value < 0 || *value > 4 {
		return nil
	}
	return value
}

// ValidatedOutputFormat accepts mp3_* and pcm_* format strings.
func ValidatedOutputFormat(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "mp3_") && !strings.HasPrefix(trimmed, "pcm_") {
		return ""
	}
	return trimmed
}

// ValidatedLanguage accepts two-letter lowercase ISO 639-1 codes.
func ValidatedLanguage(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if len(normalized) != 2 {
		return ""
	}
	for _, r := range normalized {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return normalized
}

// ValidatedNormalize accepts the text normalization modes auto, on and off.
func ValidatedNormalize(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "auto", "on", "off":
		return normalized
	}
	return ""
}

// PCMSampleRate extracts the sample rate from a pcm_NNNNN format string.
// Returns 0 for non-PCM or malformed formats.
func PCMSampleRate(outputFormat string) float64 {
	trimmed := strings.ToLower(strings.TrimSpace(outputFormat))
	if !strings.HasPrefix(trimmed, "pcm_") {
		return 0
	}
	rate, err := strconv.ParseFloat(trimmed[len("pcm_"):], 64)
	if err != nil || rate <= 0 {
		return 0
	}
	return rate
}
