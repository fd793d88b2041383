package compose

import "io/fs"

// ContextOption configures a RenderContext during creation.
//
// Example:
//
//	cfg, _ := compose.LoadConfig("compose.toml")
//	ctx, err := compose.NewRenderContextByName("gpu", compose.WithConfig(cfg))
type ContextOption func(*contextOptions)

type contextOptions struct {
	config  Config
	shaders fs.FS
}

func defaultOptions() contextOptions {
	return contextOptions{config: DefaultConfig()}
}

// WithConfig sets the engine configuration.
func WithConfig(c Config) ContextOption {
	return func(o *contextOptions) {
		o.config = c
	}
}

// WithShaderFS sets the program library, overriding Config.ShaderPath and
// the environment.
func WithShaderFS(fsys fs.FS) ContextOption {
	return func(o *contextOptions) {
		o.shaders = fsys
	}
}
