package jp2view

// planeMap caches the per-plane lookups used while sampling the reference
// grid.
type planeMap struct {
	plane  *Plane
	xmap   []int // reference column -> plane column
	ymap   []int // reference row -> plane row
	bias   int32 // added to signed samples
	maxVal int64 // 2^depth - 1
	scale  bool  // depth != 8
}

func newPlaneMap(img *Image, p *Plane) planeMap {
	m := planeMap{
		plane:  p,
		xmap:   axisMap(img.X0, img.Width(), p.Dx, p.Width),
		ymap:   axisMap(img.Y0, img.Height(), p.Dy, p.Height),
		maxVal: int64(1)<<p.Depth - 1,
		scale:  p.Depth != 8,
	}
	if p.Signed {
		m.bias = int32(1) << (p.Depth - 1)
	}
	return m
}

// axisMap maps each reference coordinate origin+i to the plane sample
// covering it: floor((origin+i)/d) - ceil(origin/d), clamped to the plane.
// For an integer ratio this replicates every sample d times.
func axisMap(origin, n, d, planeLen int) []int {
	m := make([]int, n)
	first := ceilDiv(origin, d)
	for i := range m {
		m[i] = clamp((origin+i)/d-first, 0, planeLen-1)
	}
	return m
}

// sample8 returns the sample covering reference (x, y) normalized to
// 8 bits: signed samples are shifted by 2^(depth-1), then depths other
// than 8 are rescaled by 255/(2^depth-1) with rounding.
func (m *planeMap) sample8(x, y int) int32 {
	v := int64(m.plane.Samples[m.ymap[y]*m.plane.Width+m.xmap[x]]) + int64(m.bias)
	v = clamp(v, 0, m.maxVal)
	if m.scale {
		v = (v*255 + m.maxVal/2) / m.maxVal
	}
	return int32(v)
}

func clampToUint8(v int32) uint8 {
	return uint8(clamp(v, 0, 255))
}

// Assemble converts a decoded image into an interleaved 8-bit bitmap.
//
// Every component is upsampled to the reference grid by nearest-neighbour
// replication and normalized to 8 bits. YCbCr images with at least three
// components go through the inverse reversible color transform and come
// out tagged RGB; every other color space passes through with its tag.
// Assemble fails with an AssemblyError when a plane's geometry does not
// fit the reference grid, or when the bitmap would need more than
// DefaultMaxBytes.
//
// workers > 1 spreads the work over that many goroutines.
func Assemble(img *Image, workers int) (*Bitmap, error) {
	return AssembleWithLimit(img, workers, DefaultMaxBytes)
}

// AssembleWithLimit is Assemble with an explicit bound on the bytes
// allocated. Images over the bound fail with ErrImageTooLarge before any
// allocation. maxBytes <= 0 means DefaultMaxBytes.
func AssembleWithLimit(img *Image, workers int, maxBytes int64) (*Bitmap, error) {
	if img == nil {
		return nil, newError(KindAssembly, PhaseAssemble, ErrAssembly, nil)
	}
	if err := img.validate(maxBytes); err != nil {
		return nil, newError(KindAssembly, PhaseAssemble, err, nil)
	}

	w, h := img.Width(), img.Height()
	n := len(img.Planes)
	maps := make([]planeMap, n)
	for c := range img.Planes {
		maps[c] = newPlaneMap(img, &img.Planes[c])
	}

	bm := &Bitmap{
		Width:      w,
		Height:     h,
		Components: n,
		Stride:     w * n,
		ColorSpace: img.ColorSpace,
		Pix:        make([]byte, w*h*n),
	}

	runner := newRowRunner(workers)
	defer runner.close()

	first := 0
	if img.ColorSpace == ColorYCbCr && n >= 3 {
		assembleYCbCr(bm, maps[:3], runner)
		bm.ColorSpace = ColorRGB
		first = 3
	}

	runner.rows(h, func(start, end int) {
		for y := start; y < end; y++ {
			row := bm.Pix[y*bm.Stride : (y+1)*bm.Stride]
			for c := first; c < n; c++ {
				m := &maps[c]
				for x := range w {
					row[x*n+c] = clampToUint8(m.sample8(x, y))
				}
			}
		}
	})
	return bm, nil
}

// assembleYCbCr fills channels 0-2 of bm from Y, Cb, Cr planes. Samples are
// normalized to 8 bits first, chroma is centered on 128, and the inverse
// RCT runs over SIMD-aligned planes.
func assembleYCbCr(bm *Bitmap, maps []planeMap, runner rowRunner) {
	w, h, n := bm.Width, bm.Height, bm.Components
	buf := getRCTBuf(w, h)
	defer putRCTBuf(buf)

	runner.rows(h, func(start, end int) {
		for y := start; y < end; y++ {
			yRow := buf.imgs[0].Row(y)
			cbRow := buf.imgs[1].Row(y)
			crRow := buf.imgs[2].Row(y)
			for x := range w {
				yRow[x] = maps[0].sample8(x, y)
				cbRow[x] = maps[1].sample8(x, y) - 128
				crRow[x] = maps[2].sample8(x, y) - 128
			}
		}
	})

	buf.inverseRCT()

	runner.rows(h, func(start, end int) {
		for y := start; y < end; y++ {
			row := bm.Pix[y*bm.Stride : (y+1)*bm.Stride]
			rRow := buf.imgs[3].Row(y)
			gRow := buf.imgs[4].Row(y)
			bRow := buf.imgs[5].Row(y)
			for x := range w {
				row[x*n+0] = clampToUint8(rRow[x])
				row[x*n+1] = clampToUint8(gRow[x])
				row[x*n+2] = clampToUint8(bRow[x])
			}
		}
	})
}
