// Command composedemo renders a chroma-keyed, optionally warped surface
// over a background and saves the result as PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	imagecolor "image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/profile"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	_ "github.com/gogpu/compose/driver/gpu"
	_ "github.com/gogpu/compose/driver/soft"
)

func main() {
	var (
		drvName   = flag.String("driver", "soft", "render driver: soft or gpu")
		config    = flag.String("config", "", "TOML configuration file")
		input     = flag.String("input", "", "PNG to key; a generated green screen when empty")
		output    = flag.String("output", "compose.png", "output file")
		width     = flag.Int("width", 640, "output width")
		height    = flag.Int("height", 480, "output height")
		tolerance = flag.Float64("tolerance", 0.1, "hue tolerance of the key")
		erosion   = flag.Int("erosion", 1, "alpha erosion passes")
		tile      = flag.Int("tile", 64, "tile size of the warp grid")
		wave      = flag.Float64("wave", 0.02, "warp amplitude as a fraction of the surface")
		invert    = flag.Bool("invert", false, "invert instead of keying")
		prof      = flag.String("profile", "", "write a cpu or mem profile to the working directory")
		verbose   = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	switch *prof {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	case "":
	default:
		log.Fatalf("unknown profile %q", *prof)
	}
	if *verbose {
		compose.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := compose.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = compose.LoadConfig(*config); err != nil {
			log.Fatal(err)
		}
	}

	src, err := loadSurface(*input)
	if err != nil {
		log.Fatalf("Failed to load surface: %v", err)
	}

	size := image.Pt(*width, *height)
	out, err := render(*drvName, cfg, src, size, options{
		tolerance: float32(*tolerance),
		erosion:   *erosion,
		tile:      *tile,
		wave:      float32(*wave),
		invert:    *invert,
	})
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	if err := savePNG(*output, out); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Composite saved to %s (%dx%d, %s driver)\n", *output, size.X, size.Y, *drvName)
}

type options struct {
	tolerance float32
	erosion   int
	tile      int
	wave      float32
	invert    bool
}

func render(name string, cfg compose.Config, src image.Image, size image.Point, o options) (*bitmap.Bitmap, error) {
	ctx, err := compose.NewRenderContextByName(name, compose.WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	defer ctx.Destroy()
	ctx.Activate(compose.NewThread())
	ctx.LogConfig()

	target, err := compose.NewRenderTarget(ctx, compose.TargetConfig{Size: size, Format: bitmap.FormatRGBA8})
	if err != nil {
		return nil, err
	}
	defer target.Destroy()

	node := compose.NewRasterNode(ctx)
	defer node.Destroy()
	if err := node.SetSurfaceImage(src); err != nil {
		return nil, err
	}
	if err := node.SetMaxTileSize(image.Pt(o.tile, o.tile)); err != nil {
		return nil, err
	}
	if err := warp(node, o.wave); err != nil {
		return nil, err
	}

	if o.invert {
		err = node.SetEffect(compose.NewInvert())
	} else {
		key := compose.NewChromaKey()
		if err = key.SetParams(compose.ChromaKeyParams{
			Color:      imagecolor.RGBA{G: 255, A: 255},
			HTolerance: o.tolerance,
			STolerance: 0.5,
			LTolerance: 0.5,
			Softness:   0.05,
			Erosion:    o.erosion,
		}); err != nil {
			return nil, err
		}
		err = node.SetEffect(key)
	}
	if err != nil {
		return nil, err
	}

	target.Clear(driver.Color{R: 0.1, G: 0.2, B: 0.4, A: 1})
	if err := node.Draw(compose.DefaultDrawParams(size)); err != nil {
		return nil, err
	}
	return target.ReadPixels(0)
}

// warp displaces the inner grid vertices along a sine wave.
func warp(node *compose.RasterNode, amplitude float32) error {
	if amplitude == 0 {
		return nil
	}
	grid, err := node.WarpedVertexCoords()
	if err != nil {
		return err
	}
	for y := 1; y < len(grid)-1; y++ {
		for x := 1; x < len(grid[y])-1; x++ {
			v := grid[y][x]
			grid[y][x] = v.Add(mgl32.Vec2{amplitude * float32(math.Sin(float64(v.Y())*2*math.Pi)), 0})
		}
	}
	return node.SetWarpedVertexCoords(grid)
}

func loadSurface(path string) (image.Image, error) {
	if path == "" {
		return greenScreen(image.Pt(320, 240)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// greenScreen returns a green field with an orange disc in the middle.
func greenScreen(size image.Point) image.Image {
	img := image.NewRGBA(image.Rectangle{Max: size})
	cx, cy := float64(size.X)/2, float64(size.Y)/2
	r := math.Min(cx, cy) * 0.6
	for y := range size.Y {
		for x := range size.X {
			c := imagecolor.RGBA{G: 255, A: 255}
			if math.Hypot(float64(x)-cx, float64(y)-cy) < r {
				c = imagecolor.RGBA{R: 240, G: 140, B: 20, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func savePNG(path string, bmp *bitmap.Bitmap) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, bmp.Image()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
