package jp2view

import (
	"fmt"
	"math"
	"math/bits"
)

// DefaultMaxBytes bounds the memory Assemble may allocate for one bitmap.
const DefaultMaxBytes int64 = 1 << 32

// maxSubsampling is the largest XRsiz/YRsiz a SIZ segment can carry.
const maxSubsampling = 255

// ColorSpace tags the meaning of an image's components.
type ColorSpace int

const (
	ColorUnknown ColorSpace = iota
	ColorGray
	ColorRGB
	ColorYCbCr
	ColorCMYK
	ColorIndexed
)

func (c ColorSpace) String() string {
	switch c {
	case ColorUnknown:
		return "unknown"
	case ColorGray:
		return "gray"
	case ColorRGB:
		return "rgb"
	case ColorYCbCr:
		return "ycbcr"
	case ColorCMYK:
		return "cmyk"
	case ColorIndexed:
		return "indexed"
	default:
		return fmt.Sprintf("colorspace(%d)", int(c))
	}
}

// Plane is one decoded component.
type Plane struct {
	Width  int // samples per row in the plane's own grid
	Height int // rows in the plane's own grid
	Dx, Dy int // subsampling factors relative to the reference grid
	Depth  int // bits per sample
	Signed bool

	// Samples holds Width*Height values in row-major order. Unsigned
	// samples are in [0, 2^Depth-1]; signed samples in
	// [-2^(Depth-1), 2^(Depth-1)-1].
	Samples []int32
}

// At returns the sample at (x, y) in the plane's own grid.
func (p *Plane) At(x, y int) int32 { return p.Samples[y*p.Width+x] }

// Image is the decoder's intermediate image: a reference grid and the
// component planes aligned to it. The plane set is complete once the
// decode phase has finished.
type Image struct {
	// Reference grid bounds: [X0, X1) x [Y0, Y1).
	X0, Y0, X1, Y1 int
	ColorSpace     ColorSpace
	Planes         []Plane
}

// Width returns the width of the reference grid.
func (img *Image) Width() int { return img.X1 - img.X0 }

// Height returns the height of the reference grid.
func (img *Image) Height() int { return img.Y1 - img.Y0 }

// PlaneWidth returns the width a component with horizontal subsampling dx
// must have on this grid (ITU-T T.800 equation B-2).
func (img *Image) PlaneWidth(dx int) int {
	return ceilDiv(img.X1, dx) - ceilDiv(img.X0, dx)
}

// PlaneHeight returns the height a component with vertical subsampling dy
// must have on this grid.
func (img *Image) PlaneHeight(dy int) int {
	return ceilDiv(img.Y1, dy) - ceilDiv(img.Y0, dy)
}

// footprint returns the number of bytes Assemble allocates for img: the
// interleaved output, the per-plane coordinate maps and, for YCbCr, the six
// int32 planes of the inverse color transform. ok is false if the count
// does not fit in a uint64.
func (img *Image) footprint() (n uint64, ok bool) {
	w, h := uint64(img.Width()), uint64(img.Height())
	comps := uint64(len(img.Planes))
	perPixel := comps
	if img.ColorSpace == ColorYCbCr && comps >= 3 {
		perPixel += 6 * 4
	}
	mul := func(a, b uint64) uint64 {
		hi, lo := bits.Mul64(a, b)
		ok = ok && hi == 0
		return lo
	}
	add := func(a, b uint64) uint64 {
		sum, carry := bits.Add64(a, b, 0)
		ok = ok && carry == 0
		return sum
	}
	ok = true
	pix := mul(mul(w, h), perPixel)
	maps := mul(mul(add(w, h), comps), 8)
	n = add(pix, maps)
	return n, ok
}

// validate checks the structural contract between the decode stage and the
// assembler, and that the bitmap fits in maxBytes. It runs before anything
// is allocated.
func (img *Image) validate(maxBytes int64) error {
	if img.Width() <= 0 || img.Height() <= 0 {
		return fmt.Errorf("empty reference grid %dx%d", img.Width(), img.Height())
	}
	if img.X0 < 0 || img.Y0 < 0 {
		return fmt.Errorf("negative grid origin (%d,%d)", img.X0, img.Y0)
	}
	if len(img.Planes) == 0 {
		return fmt.Errorf("no component planes")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if n, ok := img.footprint(); !ok || n > uint64(maxBytes) || n > math.MaxInt {
		return fmt.Errorf("%w: %dx%d grid with %d components exceeds %d bytes",
			ErrImageTooLarge, img.Width(), img.Height(), len(img.Planes), maxBytes)
	}
	for c := range img.Planes {
		p := &img.Planes[c]
		if p.Dx < 1 || p.Dy < 1 || p.Dx > maxSubsampling || p.Dy > maxSubsampling {
			return fmt.Errorf("component %d: invalid subsampling %dx%d", c, p.Dx, p.Dy)
		}
		if p.Depth < 1 || p.Depth > 31 {
			return fmt.Errorf("component %d: unsupported bit depth %d", c, p.Depth)
		}
		if w, h := img.PlaneWidth(p.Dx), img.PlaneHeight(p.Dy); p.Width != w || p.Height != h {
			return fmt.Errorf("component %d: plane is %dx%d, subsampling %dx%d of %dx%d grid needs %dx%d",
				c, p.Width, p.Height, p.Dx, p.Dy, img.Width(), img.Height(), w, h)
		}
		if len(p.Samples) != p.Width*p.Height {
			return fmt.Errorf("component %d: %d samples for a %dx%d plane", c, len(p.Samples), p.Width, p.Height)
		}
	}
	return nil
}
