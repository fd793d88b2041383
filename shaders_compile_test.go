//go:build !nogpu

package compose

import (
	"testing"

	"github.com/gogpu/naga"
)

func TestEmbeddedProgramsCompile(t *testing.T) {
	ids := []string{ProgramStandard, ProgramMinimal, ProgramInvert, ProgramChromaKey, ProgramChromaKeyErosion}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			pp := preprocessor{fsys: EmbeddedShaders()}
			src, err := pp.process(id + ".wgsl")
			if err != nil {
				t.Fatalf("process() error = %v", err)
			}
			spv, err := naga.Compile(src)
			if err != nil {
				t.Fatalf("naga.Compile() error = %v\n%s", err, src)
			}
			if len(spv) == 0 || len(spv)%4 != 0 {
				t.Errorf("SPIR-V is %d bytes", len(spv))
			}
		})
	}
}
