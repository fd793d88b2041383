package compose

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

//go:embed shaders/*.wgsl
var embeddedShaders embed.FS

// Program ids of the built-in library.
const (
	ProgramStandard         = "standard"
	ProgramMinimal          = "minimal"
	ProgramInvert           = "invert"
	ProgramChromaKey        = "chromakey"
	ProgramChromaKeyErosion = "chromakey_erosion"
)

// EmbeddedShaders returns the program library compiled into the binary.
func EmbeddedShaders() fs.FS {
	sub, err := fs.Sub(embeddedShaders, "shaders")
	if err != nil {
		panic(err)
	}
	return sub
}

// shaderLibrary picks the program library: an explicit file system, then
// the configured or environment path, then the embedded library.
func shaderLibrary(o contextOptions) (fs.FS, error) {
	if o.shaders != nil {
		return o.shaders, nil
	}
	dir := o.config.shaderPath()
	if dir == "" {
		return EmbeddedShaders(), nil
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("compose: shader path %s: %w", dir, fs.ErrNotExist)
	}
	Logger().Info("compose: loading programs", slog.String("path", dir))
	return os.DirFS(dir), nil
}
