// Package config provides configuration loading and management for the
// frame-access subsystem.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the options a session recognises.
type Config struct {
	HardwareDecode    bool   `yaml:"hardware_decode"`
	HardwareDecodeAPI string `yaml:"hardware_decode_api"`
	MaxCacheSize      int    `yaml:"max_cache_size"`
}

// cacheBudgetBytes is the memory budget auto-derivation divides
// width*height*4 into.
const cacheBudgetBytes = 768 * 1024 * 1024

// fhdPixels is width*height for 1920x1080, the threshold above which
// the auto-derived cache size clamps to 120 instead of 240.
const fhdPixels = 1920 * 1080

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		HardwareDecode:    true,
		HardwareDecodeAPI: "auto",
		MaxCacheSize:      0,
	}
}

// LoadFromFile loads configuration from a YAML file, starting from
// Defaults() so unset fields keep their default value. Unknown fields
// are ignored by yaml.v3's default unmarshal behavior.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolveCacheSize returns MaxCacheSize if explicitly configured
// (non-zero), otherwise auto-derives a frame count from width*height*4
// under cacheBudgetBytes, clamped to [12, 240] (or 120 above 1080p).
func (c Config) ResolveCacheSize(width, height int) int {
	if c.MaxCacheSize > 0 {
		return c.MaxCacheSize
	}

	frameBytes := width * height * 4
	if frameBytes <= 0 {
		return 12
	}

	n := cacheBudgetBytes / frameBytes
	max := 240
	if width*height > fhdPixels {
		max = 120
	}
	if n < 12 {
		n = 12
	}
	if n > max {
		n = max
	}
	return n
}
