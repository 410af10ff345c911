// Package canvas implements the shared raster all clients draw onto.
//
// Every pixel is stored as one atomic cell holding 0xRRGGBBAA, so writes to
// different pixels never contend and a partially transparent write is a
// compare-and-swap loop over a single cell. The grid itself is swapped out
// by Resize under a write lock; pixel operations hold the read side, which
// makes every pixel operation observe either the old or the new grid.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// ErrOutOfBounds is matched by every *BoundsError.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// BoundsError reports a pixel coordinate outside the canvas.
type BoundsError struct {
	X, Y          int
	Width, Height int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("pixel (%d,%d) outside canvas %dx%d", e.X, e.Y, e.Width, e.Height)
}

func (e *BoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// Color is an 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

// Black is the fill for newly exposed or cleared pixels.
var Black = Color{A: 0xff}

func (c Color) pack() uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

func unpack(v uint32) Color {
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

// blend composites src over dst with src's alpha, truncating.
func blend(dst, src Color) Color {
	a := uint32(src.A)
	mix := func(d, s uint8) uint8 {
		return uint8((uint32(d)*(0xff-a) + uint32(s)*a) / 0xff)
	}
	return Color{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 0xff}
}

type grid struct {
	width, height int
	cells         []atomic.Uint32
}

func newGrid(width, height int) *grid {
	g := &grid{width: width, height: height, cells: make([]atomic.Uint32, width*height)}
	black := Black.pack()
	for i := range g.cells {
		g.cells[i].Store(black)
	}
	return g
}

func (g *grid) cell(x, y int) (*atomic.Uint32, error) {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return nil, &BoundsError{X: x, Y: y, Width: g.width, Height: g.height}
	}
	return &g.cells[y*g.width+x], nil
}

// MaxDimension bounds the width and height of a canvas.
const MaxDimension = 1 << 14

// CheckSize returns an error unless width x height is a valid canvas size.
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("invalid canvas size %dx%d, each side must be between 1 and %d", width, height, MaxDimension)
	}
	return nil
}

// Canvas is safe for concurrent use.
type Canvas struct {
	mu   sync.RWMutex
	grid *grid
}

// New returns a canvas of the given size filled with opaque black.
func New(width, height int) (*Canvas, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}
	return &Canvas{grid: newGrid(width, height)}, nil
}

// Size returns the current width and height.
func (c *Canvas) Size() (width, height int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.width, c.grid.height
}

// Resize replaces the grid, keeping existing pixels anchored top-left.
func (c *Canvas) Resize(width, height int) error {
	if err := CheckSize(width, height); err != nil {
		return err
	}

	next := newGrid(width, height)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.grid
	w, h := min(prev.width, width), min(prev.height, height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			next.cells[y*width+x].Store(prev.cells[y*prev.width+x].Load())
		}
	}
	c.grid = next
	return nil
}

// Pixel returns the stored color at (x, y).
func (c *Canvas) Pixel(x, y int) (Color, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cell, err := c.grid.cell(x, y)
	if err != nil {
		return Color{}, err
	}
	return unpack(cell.Load()), nil
}

// SetPixel draws col at (x, y). A zero alpha is a no-op, a full alpha
// overwrites, anything in between is blended into the stored color. The
// stored color is always opaque.
func (c *Canvas) SetPixel(x, y int, col Color) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cell, err := c.grid.cell(x, y)
	if err != nil {
		return err
	}

	switch col.A {
	case 0:
	case 0xff:
		cell.Store(col.pack())
	default:
		for {
			old := cell.Load()
			if cell.CompareAndSwap(old, blend(unpack(old), col).pack()) {
				break
			}
		}
	}
	return nil
}

// Clear fills the whole canvas with opaque black.
func (c *Canvas) Clear() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	black := Black.pack()
	for i := range c.grid.cells {
		c.grid.cells[i].Store(black)
	}
}

// Image returns a copy of the current canvas.
func (c *Canvas) Image() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g := c.grid
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	for i := range g.cells {
		v := g.cells[i].Load()
		img.Pix[i*4+0] = uint8(v >> 24)
		img.Pix[i*4+1] = uint8(v >> 16)
		img.Pix[i*4+2] = uint8(v >> 8)
		img.Pix[i*4+3] = uint8(v)
	}
	return img
}
