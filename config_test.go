package compose

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeConfig(t *testing.T) {
	src := `
shader_path = "/opt/shaders"
memory_mode = "direct"
samples = 4
max_tile_size = [64, -1]
`
	cfg, err := DecodeConfig(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.ShaderPath != "/opt/shaders" || cfg.MemoryMode != "direct" || cfg.Samples != 4 {
		t.Errorf("decoded %+v", cfg)
	}
	if cfg.MaxTileSize != [2]int{64, -1} {
		t.Errorf("MaxTileSize = %v, want [64 -1]", cfg.MaxTileSize)
	}
	// Keys absent from the file keep their defaults.
	if cfg.MinimalProgram != "auto" || cfg.MaskCacheSize != 16 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestDecodeConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"memory mode", `memory_mode = "sometimes"`, ErrUnsupported},
		{"minimal program", `minimal_program = "maybe"`, ErrUnsupported},
		{"negative samples", `samples = -2`, ErrOutOfRange},
		{"negative cache", `mask_cache_size = -1`, ErrOutOfRange},
		{"tile not power of two", `max_tile_size = [48, 48]`, ErrOutOfRange},
		{"zero tile", `max_tile_size = [0, 16]`, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.src))
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeConfig() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := DecodeConfig(strings.NewReader("samples = ")); err == nil {
		t.Error("malformed TOML decoded")
	}
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PowerOfTwoTextures = true
	cfg.MaxTileSize = [2]int{32, 32}

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(buf.String(), "power_of_two_textures = true") {
		t.Errorf("encoded config lacks toml keys:\n%s", buf.String())
	}
	got, err := DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compose.toml")
	if err := os.WriteFile(path, []byte("samples = 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Samples != 2 {
		t.Errorf("Samples = %d, want 2", cfg.Samples)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig(missing) succeeded")
	}
}

func TestShaderPathEnvOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShaderPath = "/from/config"
	t.Setenv(ShaderPathEnv, "")
	if got := cfg.shaderPath(); got != "/from/config" {
		t.Errorf("shaderPath() = %q", got)
	}
	t.Setenv(ShaderPathEnv, "/from/env")
	if got := cfg.shaderPath(); got != "/from/env" {
		t.Errorf("shaderPath() = %q, want env value", got)
	}
}
