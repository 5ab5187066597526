package jp2view

import (
	"encoding/binary"
	"fmt"
)

// JP2 box types
const (
	jp2BoxSignature    = 0x6A502020 // "jP  "
	jp2BoxFileType     = 0x66747970 // "ftyp"
	jp2BoxHeader       = 0x6A703268 // "jp2h" (superbox)
	jp2BoxCodestream   = 0x6A703263 // "jp2c"
	jp2BoxImageHeader  = 0x69686472 // "ihdr"
	jp2BoxColorSpec    = 0x636F6C72 // "colr"
	jp2BoxPalette      = 0x70636C72 // "pclr"
	jp2BoxComponentMap = 0x636D6170 // "cmap"
	jp2BoxChannelDef   = 0x63646566 // "cdef"
)

// JP2ColorMethod is the colr box specification method.
type JP2ColorMethod uint8

const (
	JP2ColorEnumerated JP2ColorMethod = 1
	JP2ColorICC        JP2ColorMethod = 2
	JP2ColorICCAny     JP2ColorMethod = 3
)

// JP2ColorSpace is an enumerated color space per ITU-T T.800 Table I.10.
type JP2ColorSpace uint32

const (
	JP2ColorBiLevel1  JP2ColorSpace = 1
	JP2ColorYCbCr1    JP2ColorSpace = 3
	JP2ColorYCbCr2    JP2ColorSpace = 4
	JP2ColorYCbCr3    JP2ColorSpace = 5
	JP2ColorPhotoYCC  JP2ColorSpace = 9
	JP2ColorCMY       JP2ColorSpace = 11
	JP2ColorCMYK      JP2ColorSpace = 12
	JP2ColorYCCK      JP2ColorSpace = 13
	JP2ColorBiLevel2  JP2ColorSpace = 15
	JP2ColorSRGB      JP2ColorSpace = 16
	JP2ColorGrayscale JP2ColorSpace = 17
	JP2ColorSYCC      JP2ColorSpace = 18
	JP2ColorESRGB     JP2ColorSpace = 20
	JP2ColorROMM      JP2ColorSpace = 21
	JP2ColorESYCC     JP2ColorSpace = 24
)

// JP2Metadata holds the JP2 header boxes relevant to display.
type JP2Metadata struct {
	// ihdr
	Width, Height uint32
	NumComps      uint16
	BitDepth      int // 0 when components differ (bpcc box)
	Signed        bool

	// colr
	ColorMethod JP2ColorMethod
	ColorSpace  JP2ColorSpace // only meaningful for JP2ColorEnumerated
	ICCProfile  []byte

	Palette      *JP2Palette // nil without a pclr box
	ComponentMap []JP2ComponentMapping
	ChannelDefs  []JP2ChannelDef
}

// JP2Palette is a pclr box: NumEntries rows of NumColumns values.
type JP2Palette struct {
	NumEntries int
	NumColumns int
	BitDepths  []int
	Signed     []bool
	Entries    [][]int32 // [entry][column]
}

// Lookup returns column col of entry index, clamping index to the table.
func (p *JP2Palette) Lookup(index int32, col int) int32 {
	return p.Entries[clamp(int(index), 0, p.NumEntries-1)][col]
}

// JP2ComponentMapping is one cmap entry.
type JP2ComponentMapping struct {
	Component   int
	MappingType int // 0=direct, 1=palette
	PaletteCol  int
}

// JP2ChannelDef is one cdef entry.
type JP2ChannelDef struct {
	Channel     int
	Type        int // 0=color, 1=opacity, 2=premultiplied opacity
	Association int // 1..n color index, 0=whole image
}

func (m *JP2Metadata) colorSpace() ColorSpace {
	if m.ColorMethod != JP2ColorEnumerated {
		return ColorUnknown
	}
	switch m.ColorSpace {
	case JP2ColorSRGB, JP2ColorESRGB, JP2ColorROMM:
		return ColorRGB
	case JP2ColorGrayscale, JP2ColorBiLevel1, JP2ColorBiLevel2:
		return ColorGray
	case JP2ColorYCbCr1, JP2ColorYCbCr2, JP2ColorYCbCr3,
		JP2ColorSYCC, JP2ColorESYCC, JP2ColorPhotoYCC:
		return ColorYCbCr
	case JP2ColorCMYK:
		return ColorCMYK
	default:
		return ColorUnknown
	}
}

// parseJP2Container walks the top-level boxes and returns the header
// metadata and the contiguous codestream.
func parseJP2Container(data []byte) (*JP2Metadata, []byte, error) {
	meta := &JP2Metadata{}
	var codestream []byte
	var sawFileType bool

	pos := 0
	for pos+8 <= len(data) {
		boxLen, boxType, headerLen, err := parseBoxHeader(data, pos)
		if err != nil {
			return nil, nil, err
		}
		if boxLen == 0 {
			boxLen = len(data) - pos
		}
		if boxLen < headerLen {
			return nil, nil, fmt.Errorf("%w: box 0x%08X length %d", ErrInvalidHeader, boxType, boxLen)
		}
		if pos+boxLen > len(data) {
			// A truncated codestream box is still handed on; the codestream
			// parser reports what is missing.
			if boxType == jp2BoxCodestream {
				codestream = data[pos+headerLen:]
				break
			}
			return nil, nil, fmt.Errorf("%w: box 0x%08X overruns file", ErrTruncatedData, boxType)
		}

		boxData := data[pos+headerLen : pos+boxLen]
		switch boxType {
		case jp2BoxFileType:
			sawFileType = true
		case jp2BoxHeader:
			parseJP2HeaderBox(boxData, meta)
		case jp2BoxCodestream:
			codestream = boxData
		}
		if codestream != nil {
			break
		}
		pos += boxLen
	}

	if !sawFileType && codestream != nil {
		return nil, nil, fmt.Errorf("%w: missing ftyp box", ErrInvalidHeader)
	}
	return meta, codestream, nil
}

// parseBoxHeader returns a box's length, type, and header size.
func parseBoxHeader(data []byte, pos int) (boxLen int, boxType uint32, headerLen int, err error) {
	if pos+8 > len(data) {
		return 0, 0, 0, ErrTruncatedData
	}

	boxLen = int(binary.BigEndian.Uint32(data[pos:]))
	boxType = binary.BigEndian.Uint32(data[pos+4:])
	headerLen = 8

	switch {
	case boxLen == 1:
		// 8-byte extended length
		if pos+16 > len(data) {
			return 0, 0, 0, ErrTruncatedData
		}
		xl := binary.BigEndian.Uint64(data[pos+8:])
		if xl > uint64(len(data)) {
			xl = uint64(len(data)) + 1
		}
		boxLen = int(xl)
		headerLen = 16
	case boxLen != 0 && boxLen < 8:
		return 0, 0, 0, fmt.Errorf("%w: box length %d", ErrInvalidHeader, boxLen)
	}
	return boxLen, boxType, headerLen, nil
}

// parseJP2HeaderBox parses the jp2h superbox contents.
func parseJP2HeaderBox(data []byte, meta *JP2Metadata) {
	pos := 0
	for pos+8 <= len(data) {
		boxLen, boxType, headerLen, err := parseBoxHeader(data, pos)
		if err != nil {
			return
		}
		if boxLen == 0 {
			boxLen = len(data) - pos
		}
		if boxLen < headerLen || pos+boxLen > len(data) {
			return
		}

		boxData := data[pos+headerLen : pos+boxLen]
		switch boxType {
		case jp2BoxImageHeader:
			parseImageHeader(boxData, meta)
		case jp2BoxColorSpec:
			// Only the first colr box is significant.
			if meta.ColorMethod == 0 {
				parseColorSpec(boxData, meta)
			}
		case jp2BoxPalette:
			parsePaletteBox(boxData, meta)
		case jp2BoxComponentMap:
			parseComponentMapBox(boxData, meta)
		case jp2BoxChannelDef:
			parseChannelDefBox(boxData, meta)
		}
		pos += boxLen
	}
}

func parseImageHeader(data []byte, meta *JP2Metadata) {
	if len(data) < 14 {
		return
	}
	meta.Height = binary.BigEndian.Uint32(data[0:4])
	meta.Width = binary.BigEndian.Uint32(data[4:8])
	meta.NumComps = binary.BigEndian.Uint16(data[8:10])

	// BPC 255 means per-component depths live in a bpcc box.
	if bpc := data[10]; bpc != 0xFF {
		meta.Signed = bpc&0x80 != 0
		meta.BitDepth = int(bpc&0x7F) + 1
	}
}

func parseColorSpec(data []byte, meta *JP2Metadata) {
	if len(data) < 3 {
		return
	}
	meta.ColorMethod = JP2ColorMethod(data[0])
	switch meta.ColorMethod {
	case JP2ColorEnumerated:
		if len(data) >= 7 {
			meta.ColorSpace = JP2ColorSpace(binary.BigEndian.Uint32(data[3:7]))
		}
	case JP2ColorICC, JP2ColorICCAny:
		meta.ICCProfile = append([]byte(nil), data[3:]...)
	}
}

// maxPaletteEntries is the largest pclr table libopenjp2 accepts.
const maxPaletteEntries = 1024

// parsePaletteBox parses pclr: NE(2) NPC(1) B(NPC), then NE rows of NPC
// big-endian values, each ceil(B/8) bytes wide. Malformed boxes are
// ignored.
func parsePaletteBox(data []byte, meta *JP2Metadata) {
	if len(data) < 3 {
		return
	}
	ne, npc := int(binary.BigEndian.Uint16(data[0:2])), int(data[2])
	if ne == 0 || ne > maxPaletteEntries || npc == 0 || len(data) < 3+npc {
		return
	}
	pal := &JP2Palette{
		NumEntries: ne,
		NumColumns: npc,
		BitDepths:  make([]int, npc),
		Signed:     make([]bool, npc),
	}
	rowLen := 0
	for j, b := range data[3 : 3+npc] {
		pal.Signed[j] = b&0x80 != 0
		pal.BitDepths[j] = int(b&0x7F) + 1
		if pal.BitDepths[j] > 32 {
			return
		}
		rowLen += (pal.BitDepths[j] + 7) / 8
	}
	body := data[3+npc:]
	if len(body) < ne*rowLen {
		return
	}

	pal.Entries = make([][]int32, ne)
	for i := range pal.Entries {
		row := make([]int32, npc)
		for j, depth := range pal.BitDepths {
			var v uint64
			for range (depth + 7) / 8 {
				v = v<<8 | uint64(body[0])
				body = body[1:]
			}
			if pal.Signed[j] && v >= 1<<(depth-1) {
				row[j] = int32(int64(v) - 1<<depth)
			} else {
				row[j] = int32(v)
			}
		}
		pal.Entries[i] = row
	}
	meta.Palette = pal
}

// parseComponentMapBox parses cmap: repeated CMP(2) MTYP(1) PCOL(1).
func parseComponentMapBox(data []byte, meta *JP2Metadata) {
	n := len(data) / 4
	meta.ComponentMap = make([]JP2ComponentMapping, n)
	for i := range n {
		meta.ComponentMap[i] = JP2ComponentMapping{
			Component:   int(binary.BigEndian.Uint16(data[i*4 : i*4+2])),
			MappingType: int(data[i*4+2]),
			PaletteCol:  int(data[i*4+3]),
		}
	}
}

// parseChannelDefBox parses cdef: N(2) then repeated Cn(2) Typ(2) Asoc(2).
func parseChannelDefBox(data []byte, meta *JP2Metadata) {
	if len(data) < 2 {
		return
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+n*6 {
		return
	}
	meta.ChannelDefs = make([]JP2ChannelDef, n)
	for i := range n {
		meta.ChannelDefs[i] = JP2ChannelDef{
			Channel:     int(binary.BigEndian.Uint16(data[2+i*6 : 4+i*6])),
			Type:        int(binary.BigEndian.Uint16(data[4+i*6 : 6+i*6])),
			Association: int(binary.BigEndian.Uint16(data[6+i*6 : 8+i*6])),
		}
	}
}

// PaletteApplied reports whether a decoder honoring the color boxes expands
// the palette. That takes both a pclr and a cmap box; libopenjp2 discards a
// pclr box that has no cmap.
func (m *JP2Metadata) PaletteApplied() bool {
	return m != nil && m.Palette != nil && len(m.ComponentMap) > 0
}

// HasAlpha reports whether a channel definition marks an opacity channel.
func (m *JP2Metadata) HasAlpha() bool {
	for _, cd := range m.ChannelDefs {
		if cd.Type == 1 || cd.Type == 2 {
			return true
		}
	}
	return false
}
