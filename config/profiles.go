package config

import (
	"fmt"
	"os"

	"github.com/clipforge/renderd/internal/domain"
	"gopkg.in/yaml.v3"
)

type profileSpec struct {
	Name         string `yaml:"name"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	VideoBitrate string `yaml:"video_bitrate"`
	AudioBitrate string `yaml:"audio_bitrate"`
	CRF          int    `yaml:"crf"`
	Preset       string `yaml:"preset"`
}

type profilesFile struct {
	Profiles []profileSpec `yaml:"profiles"`
}

// DefaultProfiles is the built-in platform table used when no profiles
// file is configured.
func DefaultProfiles() map[string]domain.PlatformProfile {
	list := []domain.PlatformProfile{
		{Name: "horizontal", Width: 1920, Height: 1080, FPS: 30},
		{Name: "vertical", Width: 1080, Height: 1920, FPS: 30},
		{Name: "square", Width: 1080, Height: 1080, FPS: 30},
	}
	out := make(map[string]domain.PlatformProfile, len(list))
	for _, p := range list {
		out[p.Name] = applyEncodingDefaults(p)
	}
	return out
}

// LoadProfiles reads the platform profile table from a YAML file, or
// returns the defaults when path is empty.
func LoadProfiles(path string) (map[string]domain.PlatformProfile, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file %s defines no profiles", path)
	}

	out := make(map[string]domain.PlatformProfile, len(file.Profiles))
	for _, spec := range file.Profiles {
		p := applyEncodingDefaults(domain.PlatformProfile{
			Name:         spec.Name,
			Width:        spec.Width,
			Height:       spec.Height,
			FPS:          spec.FPS,
			VideoBitrate: spec.VideoBitrate,
			AudioBitrate: spec.AudioBitrate,
			CRF:          spec.CRF,
			Preset:       spec.Preset,
		})
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

// Encoding parameters are uniform across platforms; profiles only override
// geometry and frame rate unless explicitly configured otherwise.
func applyEncodingDefaults(p domain.PlatformProfile) domain.PlatformProfile {
	if p.FPS == 0 {
		p.FPS = 30
	}
	if p.VideoBitrate == "" {
		p.VideoBitrate = "4M"
	}
	if p.AudioBitrate == "" {
		p.AudioBitrate = "128k"
	}
	if p.CRF == 0 {
		p.CRF = 23
	}
	if p.Preset == "" {
		p.Preset = "fast"
	}
	return p
}
