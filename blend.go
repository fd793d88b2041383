package compose

import (
	"fmt"

	"github.com/gogpu/compose/driver"
)

// BlendMode selects how drawn pixels combine with the target.
type BlendMode int

const (
	// BlendModeBlend is source-over alpha blending.
	BlendModeBlend BlendMode = iota
	// BlendModeAdd adds the weighted source to the destination.
	BlendModeAdd
	// BlendModeMin keeps the per-channel minimum.
	BlendModeMin
	// BlendModeMax keeps the per-channel maximum.
	BlendModeMax
	// BlendModeCopy replaces the destination.
	BlendModeCopy
)

// String returns the string representation of BlendMode.
func (m BlendMode) String() string {
	switch m {
	case BlendModeBlend:
		return "blend"
	case BlendModeAdd:
		return "add"
	case BlendModeMin:
		return "min"
	case BlendModeMax:
		return "max"
	case BlendModeCopy:
		return "copy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseBlendMode maps a node blend mode name to a BlendMode.
// Recognized names are "blend", "add", "min" and "max".
func ParseBlendMode(name string) (BlendMode, error) {
	switch name {
	case "blend":
		return BlendModeBlend, nil
	case "add":
		return BlendModeAdd, nil
	case "min":
		return BlendModeMin, nil
	case "max":
		return BlendModeMax, nil
	default:
		return BlendModeBlend, fmt.Errorf("compose: blend mode %q: %w", name, ErrUnsupported)
	}
}

// blendStateFor returns the driver configuration of a mode. Premultiplied
// sources are weighted by one instead of their alpha.
func blendStateFor(mode BlendMode, premultiplied bool) driver.BlendState {
	src := driver.BlendSrcAlpha
	if premultiplied {
		src = driver.BlendOne
	}
	switch mode {
	case BlendModeAdd:
		return driver.BlendState{
			Op:       driver.BlendOpAdd,
			SrcColor: src, DstColor: driver.BlendOne,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOne,
		}
	case BlendModeMin, BlendModeMax:
		op := driver.BlendOpMin
		if mode == BlendModeMax {
			op = driver.BlendOpMax
		}
		return driver.BlendState{
			Op:       op,
			SrcColor: src, DstColor: driver.BlendOneMinusSrcAlpha,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOneMinusSrcAlpha,
		}
	case BlendModeCopy:
		return driver.BlendState{
			Op:       driver.BlendOpAdd,
			SrcColor: driver.BlendOne, DstColor: driver.BlendZero,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendZero,
		}
	default:
		return driver.BlendState{
			Op:       driver.BlendOpAdd,
			SrcColor: src, DstColor: driver.BlendOneMinusSrcAlpha,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOneMinusSrcAlpha,
		}
	}
}
