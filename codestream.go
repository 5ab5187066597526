package jp2view

import (
	"encoding/binary"
	"fmt"
)

// JPEG2000 marker codes
const (
	markerSOC uint16 = 0xFF4F // Start of codestream
	markerSOT uint16 = 0xFF90 // Start of tile-part
	markerSOD uint16 = 0xFF93 // Start of data
	markerEOC uint16 = 0xFFD9 // End of codestream
	markerSIZ uint16 = 0xFF51 // Image and tile size
	markerCOD uint16 = 0xFF52 // Coding style default
	markerQCD uint16 = 0xFF5C // Quantization default
	markerCOM uint16 = 0xFF64 // Comment
)

// Format is the container format of a compressed image.
type Format int

const (
	FormatUnknown Format = iota
	FormatJ2K            // raw codestream
	FormatJP2            // JP2 file (boxes around a codestream)
)

func (f Format) String() string {
	switch f {
	case FormatJ2K:
		return "J2K"
	case FormatJP2:
		return "JP2"
	default:
		return "unknown"
	}
}

// jp2Signature is the 12-byte JP2 signature box.
const jp2Signature = "\x00\x00\x00\x0cjP  \x0d\x0a\x87\x0a"

// DetectFormat identifies the container format from the leading bytes.
func DetectFormat(data []byte) (Format, error) {
	if len(data) >= 2 && binary.BigEndian.Uint16(data) == markerSOC {
		return FormatJ2K, nil
	}
	if len(data) >= len(jp2Signature) && string(data[:len(jp2Signature)]) == jp2Signature {
		return FormatJP2, nil
	}
	if len(data) < 2 {
		return FormatUnknown, ErrTruncatedData
	}
	return FormatUnknown, ErrUnsupportedFormat
}

// ComponentInfo describes one component as declared in the SIZ marker.
type ComponentInfo struct {
	Depth  int
	Signed bool
	Dx, Dy int // XRsiz, YRsiz
	Width  int // component width on the reference grid (equation B-2)
	Height int
}

// Header is the image configuration read from the main codestream header
// and, for JP2 files, the JP2 header boxes.
type Header struct {
	Format Format

	// From SIZ marker
	Xsiz, Ysiz   int // reference grid extent
	XOsiz, YOsiz int // image offset on the reference grid
	TileWidth    int
	TileHeight   int
	NumTiles     int
	Components   []ComponentInfo

	// From COD marker
	NumLayers       int
	NumDecompLevels int
	MCT             bool
	Reversible      bool // 5/3 wavelet

	Comments []string

	ColorSpace ColorSpace
	JP2        *JP2Metadata // nil for a raw codestream
}

// Width returns the image width.
func (h *Header) Width() int { return h.Xsiz - h.XOsiz }

// Height returns the image height.
func (h *Header) Height() int { return h.Ysiz - h.YOsiz }

// OutputComponents returns the number of components in the decoded image
// when the JP2 color boxes are honored: one per cmap channel if a palette
// is applied, otherwise one per codestream component.
func (h *Header) OutputComponents() int {
	if h.JP2.PaletteApplied() {
		return len(h.JP2.ComponentMap)
	}
	return len(h.Components)
}

// ParseHeader reads the image configuration from a J2K codestream or JP2
// file without decoding any tile data.
func ParseHeader(data []byte) (*Header, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}

	codestream := data
	var meta *JP2Metadata
	if format == FormatJP2 {
		meta, codestream, err = parseJP2Container(data)
		if err != nil {
			return nil, err
		}
		if codestream == nil {
			return nil, fmt.Errorf("%w: no contiguous codestream box", ErrTruncatedData)
		}
	}

	h, err := parseMainHeader(codestream)
	if err != nil {
		return nil, err
	}
	h.Format = format
	h.JP2 = meta
	h.ColorSpace = headerColorSpace(h)
	return h, nil
}

// parseMainHeader parses marker segments from SOC up to the first SOT.
func parseMainHeader(data []byte) (*Header, error) {
	if len(data) < 2 {
		return nil, ErrTruncatedData
	}
	if binary.BigEndian.Uint16(data[0:2]) != markerSOC {
		return nil, ErrInvalidMarker
	}

	h := &Header{}
	pos := 2
	var sawSIZ, sawCOD, sawQCD bool

	for {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: main header ends at offset %d", ErrTruncatedData, pos)
		}
		marker := binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2

		if marker>>8 != 0xFF {
			return nil, fmt.Errorf("%w: 0x%04X at offset %d", ErrInvalidMarker, marker, pos-2)
		}
		// SIZ must immediately follow SOC.
		if !sawSIZ && marker != markerSIZ {
			return nil, fmt.Errorf("%w: expected SIZ after SOC, found 0x%04X", ErrInvalidMarker, marker)
		}

		switch marker {
		case markerSOT, markerEOC:
			if !sawCOD || !sawQCD {
				return nil, fmt.Errorf("%w: main header lacks COD or QCD", ErrInvalidHeader)
			}
			return h, nil
		case markerSOD:
			return nil, fmt.Errorf("%w: SOD in main header", ErrInvalidMarker)
		}

		if pos+2 > len(data) {
			return nil, ErrTruncatedData
		}
		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 {
			return nil, fmt.Errorf("%w: segment length %d for marker 0x%04X", ErrInvalidHeader, segLen, marker)
		}
		if pos+segLen > len(data) {
			return nil, ErrTruncatedData
		}
		seg := data[pos : pos+segLen]

		var err error
		switch marker {
		case markerSIZ:
			if sawSIZ {
				return nil, fmt.Errorf("%w: duplicate SIZ", ErrInvalidHeader)
			}
			err = parseSIZ(seg, h)
			sawSIZ = true
		case markerCOD:
			err = parseCOD(seg, h)
			sawCOD = true
		case markerQCD:
			if segLen < 4 {
				err = ErrTruncatedData
			}
			sawQCD = true
		case markerCOM:
			// Rcom(2) then data; only Latin text (Rcom == 1) is kept.
			if segLen >= 4 && binary.BigEndian.Uint16(seg[2:4]) == 1 {
				h.Comments = append(h.Comments, string(seg[4:]))
			}
		}
		if err != nil {
			return nil, err
		}
		pos += segLen
	}
}

// parseSIZ parses the image and tile size segment. seg starts at Lsiz.
func parseSIZ(seg []byte, h *Header) error {
	if len(seg) < 38 {
		return ErrTruncatedData
	}

	h.Xsiz = int(binary.BigEndian.Uint32(seg[4:8]))
	h.Ysiz = int(binary.BigEndian.Uint32(seg[8:12]))
	h.XOsiz = int(binary.BigEndian.Uint32(seg[12:16]))
	h.YOsiz = int(binary.BigEndian.Uint32(seg[16:20]))
	h.TileWidth = int(binary.BigEndian.Uint32(seg[20:24]))
	h.TileHeight = int(binary.BigEndian.Uint32(seg[24:28]))
	xtosiz := int(binary.BigEndian.Uint32(seg[28:32]))
	ytosiz := int(binary.BigEndian.Uint32(seg[32:36]))
	numComps := int(binary.BigEndian.Uint16(seg[36:38]))

	if h.Xsiz <= h.XOsiz || h.Ysiz <= h.YOsiz {
		return fmt.Errorf("%w: empty image area %dx%d at (%d,%d)", ErrInvalidHeader, h.Xsiz, h.Ysiz, h.XOsiz, h.YOsiz)
	}
	if h.TileWidth <= 0 || h.TileHeight <= 0 || xtosiz > h.XOsiz || ytosiz > h.YOsiz {
		return fmt.Errorf("%w: invalid tile grid", ErrInvalidHeader)
	}
	if numComps < 1 || numComps > 16384 {
		return fmt.Errorf("%w: invalid component count: %d", ErrInvalidHeader, numComps)
	}
	if len(seg) < 38+3*numComps {
		return ErrTruncatedData
	}

	h.Components = make([]ComponentInfo, numComps)
	for i := range numComps {
		off := 38 + 3*i
		ssiz := seg[off]
		c := ComponentInfo{
			Signed: ssiz&0x80 != 0,
			Depth:  int(ssiz&0x7F) + 1,
			Dx:     int(seg[off+1]),
			Dy:     int(seg[off+2]),
		}
		if c.Depth > 38 || c.Dx == 0 || c.Dy == 0 {
			return fmt.Errorf("%w: component %d: depth %d, subsampling %dx%d", ErrInvalidHeader, i, c.Depth, c.Dx, c.Dy)
		}
		c.Width = ceilDiv(h.Xsiz, c.Dx) - ceilDiv(h.XOsiz, c.Dx)
		c.Height = ceilDiv(h.Ysiz, c.Dy) - ceilDiv(h.YOsiz, c.Dy)
		h.Components[i] = c
	}

	numXTiles := ceilDiv(h.Xsiz-xtosiz, h.TileWidth)
	numYTiles := ceilDiv(h.Ysiz-ytosiz, h.TileHeight)
	h.NumTiles = numXTiles * numYTiles
	if h.NumTiles < 1 || h.NumTiles > 65535 {
		return fmt.Errorf("%w: tile count %d", ErrInvalidHeader, h.NumTiles)
	}
	return nil
}

// parseCOD parses the coding style default segment. seg starts at Lcod.
func parseCOD(seg []byte, h *Header) error {
	if len(seg) < 12 {
		return ErrTruncatedData
	}
	if progOrder := seg[3]; progOrder > 4 {
		return fmt.Errorf("%w: invalid progression order: %d", ErrInvalidHeader, progOrder)
	}
	h.NumLayers = int(binary.BigEndian.Uint16(seg[4:6]))
	h.MCT = seg[6] != 0
	h.NumDecompLevels = int(seg[7])
	if h.NumDecompLevels > 32 {
		return fmt.Errorf("%w: too many decomposition levels: %d", ErrInvalidHeader, h.NumDecompLevels)
	}
	switch seg[11] {
	case 0:
		h.Reversible = false
	case 1:
		h.Reversible = true
	default:
		return fmt.Errorf("%w: wavelet type %d", ErrUnsupportedFormat, seg[11])
	}
	return nil
}

// headerColorSpace derives the color space the decoded planes will carry.
func headerColorSpace(h *Header) ColorSpace {
	if h.JP2 != nil {
		if cs := h.JP2.colorSpace(); cs != ColorUnknown {
			return cs
		}
	}
	infos := make([]Plane, h.OutputComponents())
	if !h.JP2.PaletteApplied() {
		for i, c := range h.Components {
			infos[i] = Plane{Dx: c.Dx, Dy: c.Dy}
		}
	}
	return InferColorSpace(infos)
}

// InferColorSpace guesses the color space of planes whose container did not
// declare one. One or two components are gray (plus alpha); three or more
// are RGB unless the second and third components are chroma-subsampled
// relative to the first, which only happens for YCbCr data.
func InferColorSpace(planes []Plane) ColorSpace {
	switch {
	case len(planes) == 0:
		return ColorUnknown
	case len(planes) <= 2:
		return ColorGray
	}
	y, cb, cr := planes[0], planes[1], planes[2]
	if y.Dx == 1 && y.Dy == 1 && cb.Dx == cr.Dx && cb.Dy == cr.Dy && (cb.Dx > 1 || cb.Dy > 1) {
		return ColorYCbCr
	}
	return ColorRGB
}
