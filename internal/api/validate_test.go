package api

import "testing"

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestResolveSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speed    *float64
		rateWPM  *int
		expected *float64
	}{
		{"nothing set", nil, nil, nil},
		{"valid speed", floatPtr(1.2), nil, floatPtr(1.2)},
		{"speed at lower bound rejected", floatPtr(0.5), nil, nil},
		{"speed at upper bound rejected", floatPtr(2.0), nil, nil},
		{"wpm resolves", nil, intPtr(175), floatPtr(1.0)},
		{"wpm too slow", nil, intPtr(80), nil},   // 80/175 < 0.5
		{"wpm too fast", nil, intPtr(400), nil},  // 400/175 > 2.0
		{"wpm wins over speed", floatPtr(1.9), intPtr(175), floatPtr(1.0)},
		{"zero wpm falls back to speed", floatPtr(1.5), intPtr(0), floatPtr(1.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveSpeed(tt.speed, tt.rateWPM)
			if (result == nil) != (tt.expected == nil) {
				t.Fatalf("ResolveSpeed = %v, want %v", result, tt.expected)
			}
			if result != nil && *result != *tt.expected {
				t.Errorf("ResolveSpeed = %v, want %v", *result, *tt.expected)
			}
		})
	}
}

func TestValidatedStability(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		modelID  string
		expected *float64
	}{
		{"nil", nil, "eleven_v3", nil},
		{"v3 allows 0", floatPtr(0), "eleven_v3", floatPtr(0)},
		{"v3 allows 0.5", floatPtr(0.5), "eleven_v3", floatPtr(0.5)},
		{"v3 allows 1", floatPtr(1), "eleven_v3", floatPtr(1)},
		{"v3 rejects 0.3", floatPtr(0.3), "eleven_v3", nil},
		{"v3 case insensitive", floatPtr(0.3), " Eleven_V3 ", nil},
		{"other model allows 0.3", floatPtr(0.3), "eleven_multilingual_v2", floatPtr(0.3)},
		{"other model rejects 1.5", floatPtr(1.5), "eleven_multilingual_v2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatedStability(tt.value, tt.modelID)
			if (result == nil) != (tt.expected == nil) {
				t.Fatalf("ValidatedStability = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestValidatedUnit(t *testing.T) {
	if ValidatedUnit(floatPtr(-0.1)) != nil {
		t.Error("Negative value should be rejected")
	}
	if ValidatedUnit(floatPtr(1.1)) != nil {
		t.Error("Value above 1 should be rejected")
	}
	if ValidatedUnit(floatPtr(0)) == nil || ValidatedUnit(floatPtr(1)) == nil {
		t.Error("Boundary values should be accepted")
	}
}

func TestValidatedSeed(t *testing.T) {
	if ValidatedSeed(intPtr(-1)) != nil {
		t.Error("Negative seed should be rejected")
	}
	if seed := ValidatedSeed(intPtr(42)); seed == nil || *seed != 42 {
		t.Errorf("ValidatedSeed(42) = %v, want 42", seed)
	}
	if seed := ValidatedSeed(intPtr(4294967295)); seed == nil {
		t.Error("Max uint32 should be accepted")
	}
}

func TestValidatedLatencyTier(t *testing.T) {
	if ValidatedLatencyTier(intPtr(5)) != nil {
		t.Error("Tier 5 should be rejected")
	}
	if tier := ValidatedLatencyTier(intPtr(0)); tier == nil || *tier != 0 {
		t.Error("Tier 0 should be accepted")
	}
}

func TestValidatedOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"mp3_44100_128", "mp3_44100_128"},
		{" pcm_24000 ", "pcm_24000"},
		{"ogg_44100", ""},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidatedOutputFormat(tt.input); got != tt.expected {
				t.Errorf("ValidatedOutputFormat(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidatedLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{" DE ", "de"},
		{"eng", ""},
		{"e1", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidatedLanguage(tt.input); got != tt.expected {
				t.Errorf("ValidatedLanguage(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidatedNormalize(t *testing.T) {
	for _, valid := range []string{"auto", "on", "off", " Auto "} {
		if ValidatedNormalize(valid) == "" {
			t.Errorf("ValidatedNormalize(%q) rejected a valid mode", valid)
		}
	}
	if ValidatedNormalize("maybe") != "" {
		t.Error("Invalid mode should be rejected")
	}
}

func TestPCMSampleRate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"pcm_44100", 44100},
		{"pcm_24000", 24000},
		{" PCM_16000 ", 16000},
		{"mp3_44100_128", 0},
		{"pcm_", 0},
		{"pcm_abc", 0},
		{"pcm_-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := PCMSampleRate(tt.input); got != tt.expected {
				t.Errorf("PCMSampleRate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
