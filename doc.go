// Package compose is the GPU resource and compositing layer of a 2D media
// engine.
//
// # Overview
//
// compose manages the device objects a scene renderer needs to put images
// on screen: off-screen render targets, pooled framebuffer and buffer ids,
// preprocessed shader programs, and warped, masked, tiled surfaces with
// optional post-processing effects. Rendering goes through a narrow
// driver interface (package driver) with two implementations: a CPU
// reference rasterizer (driver/soft) and a WebGPU device (driver/gpu).
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/compose"
//		_ "github.com/gogpu/compose/driver/soft"
//	)
//
//	ctx, err := compose.NewRenderContextByName("soft")
//	if err != nil {
//		return err
//	}
//	defer ctx.Destroy()
//
//	target, err := compose.NewRenderTarget(ctx, compose.TargetConfig{
//		Size:   image.Pt(640, 480),
//		Format: bitmap.FormatRGBA8,
//	})
//	...
//	node := compose.NewRasterNode(ctx)
//	node.SetSurfaceImage(img)
//	node.SetEffect(compose.NewChromaKey())
//	target.Clear(driver.Color{})
//	node.Draw(compose.DefaultDrawParams(target.Size()))
//	pixels, err := target.ReadPixels(0)
//
// # Threading
//
// A RenderContext and everything created from it belong to one render
// thread. Thread records which context is current; Activate switches it.
// Only the package logger is safe for concurrent use.
//
// # Programs
//
// Programs are WGSL files loaded from a library file system (embedded by
// default, see Config.ShaderPath). #include and #define are expanded
// before the driver compiles the result. All programs share one uniform
// layout convention: a struct starting with transform and flags, followed
// by vec4 fields, bound at binding 0; texture unit n is binding 2+n.
//
// # Logging
//
// compose logs through log/slog and is silent by default. Install a
// logger with SetLogger; it is forwarded to drivers of live contexts.
package compose
