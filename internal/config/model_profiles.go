package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelProfile overrides budget settings for a single model. Zero values keep
// the environment defaults.
type ModelProfile struct {
	CharsPerToken     float64  `yaml:"chars_per_token"`
	Ceiling           int      `yaml:"ceiling"`
	SafetyBuffer      *int     `yaml:"safety_buffer"`
	MinResponseTokens int      `yaml:"min_response_tokens"`
	StopSequences     []string `yaml:"stop_sequences"`
}

type modelProfilesDocument struct {
	Models map[string]ModelProfile `yaml:"models"`
}

// LoadModelProfiles parses the yaml file at the provided path.
//
//	models:
//	  llama-3-8b:
//	    chars_per_token: 3.5
//	    ceiling: 8000
func LoadModelProfiles(path string) (map[string]ModelProfile, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model profiles %q: %w", cleanPath, err)
	}

	var doc modelProfilesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model profiles %q: %w", cleanPath, err)
	}

	profiles := make(map[string]ModelProfile, len(doc.Models))
	for name, profile := range doc.Models {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("parse model profiles %q: empty model name", cleanPath)
		}
		if profile.CharsPerToken < 0 {
			return nil, fmt.Errorf("model %q: chars_per_token must not be negative", name)
		}
		profiles[name] = profile
	}
	return profiles, nil
}

func (p ModelProfile) apply(s GenerationSettings) GenerationSettings {
	if p.CharsPerToken > 0 {
		s.CharsPerToken = p.CharsPerToken
	}
	if p.Ceiling > 0 {
		s.Ceiling = p.Ceiling
	}
	if p.SafetyBuffer != nil {
		s.SafetyBuffer = *p.SafetyBuffer
	}
	if p.MinResponseTokens > 0 {
		s.MinResponseTokens = p.MinResponseTokens
	}
	if len(p.StopSequences) > 0 {
		s.StopSequences = append([]string(nil), p.StopSequences...)
	}
	return s
}
