package compose

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// Unbounded as a tile dimension puts the whole surface axis in one tile.
const Unbounded = -1

// tileSize validates a maximum tile size: each axis is a positive power
// of two or Unbounded.
func tileSize(p image.Point) (image.Point, error) {
	for _, v := range [2]int{p.X, p.Y} {
		if v != Unbounded && (v <= 0 || v&(v-1) != 0) {
			return image.Point{}, fmt.Errorf("compose: tile size %v: not a power of two: %w", p, ErrOutOfRange)
		}
	}
	return p, nil
}

// numTiles returns the tile count along each axis of a surface.
func numTiles(size, tile image.Point) image.Point {
	axis := func(n, t int) int {
		if t == Unbounded || n <= 0 {
			return 1
		}
		return (n + t - 1) / t
	}
	return image.Pt(axis(size.X, tile.X), axis(size.Y, tile.Y))
}

// VertexGrid holds one vertex per tile corner: rows top to bottom, each
// row left to right. Positions are normalized to the surface.
type VertexGrid [][]mgl32.Vec2

// Dims returns the number of vertices per row and the number of rows.
func (g VertexGrid) Dims() image.Point {
	if len(g) == 0 {
		return image.Point{}
	}
	return image.Pt(len(g[0]), len(g))
}

// Clone returns a deep copy of g.
func (g VertexGrid) Clone() VertexGrid {
	out := make(VertexGrid, len(g))
	for i, row := range g {
		out[i] = append([]mgl32.Vec2(nil), row...)
	}
	return out
}

// sameShape reports whether g and o have the same number of rows and the
// same length for every row.
func (g VertexGrid) sameShape(o VertexGrid) bool {
	if len(g) != len(o) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(o[i]) {
			return false
		}
	}
	return true
}

// buildTileGrid returns the undistorted grid of a surface. Inner vertices
// sit on tile boundaries; the last row and column are exactly 1.
func buildTileGrid(size, tile image.Point) VertexGrid {
	n := numTiles(size, tile)
	grid := make(VertexGrid, n.Y+1)
	for y := range grid {
		row := make([]mgl32.Vec2, n.X+1)
		for x := range row {
			row[x] = mgl32.Vec2{
				gridCoord(x, n.X, tile.X, size.X),
				gridCoord(y, n.Y, tile.Y, size.Y),
			}
		}
		grid[y] = row
	}
	return grid
}

func gridCoord(i, n, tile, size int) float32 {
	if i >= n {
		return 1
	}
	return float32(i*tile) / float32(size)
}

// texCoords maps a normalized grid into a texture of which only extent is
// covered by image data. The last row and column equal extent.
func texCoords(grid VertexGrid, extent mgl32.Vec2) VertexGrid {
	out := make(VertexGrid, len(grid))
	last := len(grid) - 1
	for y, row := range grid {
		tr := make([]mgl32.Vec2, len(row))
		for x, p := range row {
			tc := mgl32.Vec2{p[0] * extent[0], p[1] * extent[1]}
			if x == len(row)-1 {
				tc[0] = extent[0]
			}
			if y == last {
				tc[1] = extent[1]
			}
			tr[x] = tc
		}
		out[y] = tr
	}
	return out
}

// nextPow2 returns the smallest power of two not below n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
