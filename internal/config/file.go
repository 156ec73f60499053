// Package config loads the YAML configuration file and resolves
// per-user paths.
package config

import (
	"emojimosaic/internal/logging"
	"emojimosaic/internal/palette"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RendererAuto     = "auto"
	RendererFont     = "font"
	RendererSprites  = "sprites"
	RendererSwatches = "swatches"
)

// Config is the top-level configuration.
type Config struct {
	Density    int                  `yaml:"density"`
	Palette    string               `yaml:"palette"`
	SampleSize int                  `yaml:"sample_size"`
	Format     string               `yaml:"format"`
	Background string               `yaml:"background"`
	Renderer   RendererConfig       `yaml:"renderer"`
	Cache      CacheConfig          `yaml:"cache"`
	Log        logging.Options      `yaml:"log"`
	Watch      WatchConfig          `yaml:"watch"`
	Palettes   []palette.Definition `yaml:"palettes"`
}

// RendererConfig selects how glyphs are drawn.
type RendererConfig struct {
	Kind    string `yaml:"kind"` // auto | font | sprites | swatches
	Font    string `yaml:"font"`
	Sprites string `yaml:"sprites"`
	Ink     string `yaml:"ink"`
	// Swatches maps glyphs to hex colors for the swatches renderer.
	Swatches map[string]string `yaml:"swatches"`
}

type CacheConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Output   string        `yaml:"output"`
	Debounce time.Duration `yaml:"debounce"`
}

func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Load behaves like LoadFile but returns defaults when path does not exist.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.Density == 0 {
		c.Density = 30
	}
	if strings.TrimSpace(c.Palette) == "" {
		c.Palette = palette.DefaultID
	}
	if c.SampleSize <= 0 {
		c.SampleSize = palette.DefaultSampleSize
	}
	if strings.TrimSpace(c.Format) == "" {
		c.Format = "png"
	}
	if strings.TrimSpace(c.Renderer.Kind) == "" {
		c.Renderer.Kind = RendererAuto
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 750 * time.Millisecond
	}
}

func (c Config) Validate() error {
	if c.Density < 10 || c.Density > 50 {
		return fmt.Errorf("density %d outside [10, 50]", c.Density)
	}

	switch c.Renderer.Kind {
	case RendererAuto:
	case RendererFont:
		if strings.TrimSpace(c.Renderer.Font) == "" {
			return errors.New("renderer kind font requires renderer.font")
		}
	case RendererSprites:
		if strings.TrimSpace(c.Renderer.Sprites) == "" {
			return errors.New("renderer kind sprites requires renderer.sprites")
		}
	case RendererSwatches:
		if len(c.Renderer.Swatches) == 0 {
			return errors.New("renderer kind swatches requires renderer.swatches")
		}
	default:
		return fmt.Errorf("unknown renderer kind %q", c.Renderer.Kind)
	}

	for glyph, value := range c.Renderer.Swatches {
		if _, err := ParseHexColor(value); err != nil {
			return fmt.Errorf("swatch %q: %w", glyph, err)
		}
	}
	if c.Renderer.Ink != "" {
		if _, err := ParseHexColor(c.Renderer.Ink); err != nil {
			return fmt.Errorf("renderer.ink: %w", err)
		}
	}
	if c.Background != "" {
		if _, err := ParseHexColor(c.Background); err != nil {
			return fmt.Errorf("background: %w", err)
		}
	}

	if _, err := palette.NewRegistry(c.Palettes...); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseHexColor accepts #rgb, #rrggbb and #rrggbbaa.
func ParseHexColor(value string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", value)
	}

	var channels [4]uint8
	for index := range channels {
		var parsed uint8
		if _, err := fmt.Sscanf(hex[index*2:index*2+2], "%02x", &parsed); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q", value)
		}
		channels[index] = parsed
	}

	return color.NRGBA{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
}
