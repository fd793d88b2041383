//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"

	"github.com/gogpu/compose/driver"
)

// The program ABI: a `Uniforms` struct at binding 0, a sampler at binding
// 1 and texture unit n at binding 2+n.
const (
	uniformBinding = 0
	samplerBinding = 1
	textureBinding = 2
)

// flagsField is filled from SetDrawFlags rather than from SetUniform.
const flagsField = "flags"

type fieldType int

const (
	typeF32 fieldType = iota
	typeI32
	typeVec2
	typeVec4
	typeMat4
)

// size and alignment follow the WGSL uniform address space rules.
var fieldTypes = map[string]struct {
	kind        fieldType
	size, align int
}{
	"f32":         {typeF32, 4, 4},
	"i32":         {typeI32, 4, 4},
	"vec2<f32>":   {typeVec2, 8, 8},
	"vec4<f32>":   {typeVec4, 16, 16},
	"mat4x4<f32>": {typeMat4, 64, 16},
}

type field struct {
	name   string
	kind   fieldType
	offset int
}

// uniformLayout is the byte layout of a program's Uniforms struct and the
// texture units it samples.
type uniformLayout struct {
	fields []field
	size   int
	units  []int
}

var (
	structRE  = regexp.MustCompile(`(?s)struct\s+Uniforms\s*\{(.*?)\}`)
	fieldRE   = regexp.MustCompile(`(\w+)\s*:\s*([\w<>]+)\s*,?`)
	textureRE = regexp.MustCompile(`@binding\((\d+)\)\s*var\s+\w+\s*:\s*texture_2d`)
	commentRE = regexp.MustCompile(`//[^\n]*`)
)

// parseLayout extracts the uniform layout from preprocessed WGSL.
func parseLayout(src string) (uniformLayout, error) {
	var l uniformLayout
	src = commentRE.ReplaceAllString(src, "")
	if m := structRE.FindStringSubmatch(src); m != nil {
		off := 0
		for _, f := range fieldRE.FindAllStringSubmatch(m[1], -1) {
			t, ok := fieldTypes[f[2]]
			if !ok {
				return l, fmt.Errorf("gpu: uniform %s has unsupported type %s: %w", f[1], f[2], driver.ErrCompile)
			}
			off = alignUp(off, t.align)
			l.fields = append(l.fields, field{name: f[1], kind: t.kind, offset: off})
			off += t.size
		}
		l.size = alignUp(off, 16)
	}
	for _, m := range textureRE.FindAllStringSubmatch(src, -1) {
		b, _ := strconv.Atoi(m[1])
		if b < textureBinding || b-textureBinding >= maxUnits {
			return l, fmt.Errorf("gpu: texture binding %d outside units: %w", b, driver.ErrCompile)
		}
		l.units = append(l.units, b-textureBinding)
	}
	slices.Sort(l.units)
	return l, nil
}

func alignUp(n, a int) int { return (n + a - 1) / a * a }

// pack encodes values into the uniform block. Missing values stay zero;
// integers widen to floats in vector slots.
func (l *uniformLayout) pack(values map[string]driver.Uniform, flags driver.DrawFlags) []byte {
	buf := make([]byte, l.size)
	putF := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v)) }
	for _, f := range l.fields {
		if f.name == flagsField {
			putF(f.offset, boolFloat(flags&driver.DrawTextured != 0))
			putF(f.offset+4, boolFloat(flags&driver.DrawVertexColors != 0))
			continue
		}
		u, ok := values[f.name]
		if !ok {
			continue
		}
		switch f.kind {
		case typeI32:
			i := u.I
			if u.Kind != driver.UniformInt {
				i = int32(u.F[0])
			}
			binary.LittleEndian.PutUint32(buf[f.offset:], uint32(i)) //nolint:gosec // two's complement bits
		case typeF32:
			putF(f.offset, u.Vec4()[0])
		case typeVec2:
			v := u.Vec4()
			putF(f.offset, v[0])
			putF(f.offset+4, v[1])
		case typeVec4:
			for i, v := range u.Vec4() {
				putF(f.offset+4*i, v)
			}
		case typeMat4:
			for i := range 16 {
				putF(f.offset+4*i, u.F[i])
			}
		}
	}
	return buf
}

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
