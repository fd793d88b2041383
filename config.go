package compose

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// ShaderPathEnv overrides Config.ShaderPath when set.
const ShaderPathEnv = "COMPOSE_SHADER_PATH"

// Config is the engine configuration. It is usually read from a TOML file:
//
//	shader_path = "/usr/share/compose/shaders"
//	memory_mode = "auto"
//	samples = 4
//	minimal_program = "auto"
//	power_of_two_textures = true
//	max_tile_size = [-1, -1]
//	mask_cache_size = 16
type Config struct {
	// ShaderPath is the program library directory. Empty selects the
	// library compiled into the binary.
	ShaderPath string `toml:"shader_path"`

	// MemoryMode is "auto", "staging" or "direct".
	MemoryMode string `toml:"memory_mode"`

	// Samples is the default multisample count for render targets that
	// leave TargetConfig.Samples unset. Context creation fails when the
	// device cannot provide it.
	Samples int `toml:"samples"`

	// MinimalProgram is "auto", "on" or "off". Auto uses the reduced
	// program on devices without full shading support.
	MinimalProgram string `toml:"minimal_program"`

	// PowerOfTwoTextures pads surface textures to power-of-two sizes.
	PowerOfTwoTextures bool `toml:"power_of_two_textures"`

	// MaxTileSize is the default raster node tile size; -1 is unbounded.
	MaxTileSize [2]int `toml:"max_tile_size"`

	// MaskCacheSize is the number of mask textures kept per context.
	MaskCacheSize int `toml:"mask_cache_size"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MemoryMode:     "auto",
		Samples:        1,
		MinimalProgram: "auto",
		MaxTileSize:    [2]int{-1, -1},
		MaskCacheSize:  16,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("compose: read config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeConfig reads TOML from r on top of DefaultConfig.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("compose: decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Encode writes the configuration as TOML.
func (c Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("compose: encode config: %w", err)
	}
	return nil
}

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	switch c.MemoryMode {
	case "", "auto", "staging", "direct":
	default:
		return fmt.Errorf("compose: memory_mode %q: %w", c.MemoryMode, ErrUnsupported)
	}
	switch c.MinimalProgram {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("compose: minimal_program %q: %w", c.MinimalProgram, ErrUnsupported)
	}
	if c.Samples < 0 {
		return fmt.Errorf("compose: samples %d: %w", c.Samples, ErrOutOfRange)
	}
	if c.MaskCacheSize < 0 {
		return fmt.Errorf("compose: mask_cache_size %d: %w", c.MaskCacheSize, ErrOutOfRange)
	}
	if _, err := tileSize(image.Pt(c.MaxTileSize[0], c.MaxTileSize[1])); err != nil {
		return err
	}
	return nil
}

// shaderPath applies the environment override.
func (c Config) shaderPath() string {
	if p := os.Getenv(ShaderPathEnv); p != "" {
		return p
	}
	return c.ShaderPath
}
