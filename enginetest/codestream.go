package enginetest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/ajroetker/jp2view"
)

// JPEG2000 marker codes
const (
	markerSOC uint16 = 0xFF4F
	markerSOT uint16 = 0xFF90
	markerSOD uint16 = 0xFF93
	markerEOC uint16 = 0xFFD9
	markerSIZ uint16 = 0xFF51
	markerCOD uint16 = 0xFF52
	markerQCD uint16 = 0xFF5C
	markerCOM uint16 = 0xFF64
)

// JP2 box types
const (
	boxSignature    = 0x6A502020 // "jP  "
	boxFileType     = 0x66747970 // "ftyp"
	boxHeader       = 0x6A703268 // "jp2h"
	boxCodestream   = 0x6A703263 // "jp2c"
	boxImageHeader  = 0x69686472 // "ihdr"
	boxColorSpec    = 0x636F6C72 // "colr"
	boxPalette      = 0x70636C72 // "pclr"
	boxComponentMap = 0x636D6170 // "cmap"
	boxChannelDef   = 0x63646566 // "cdef"
	brandJP2        = 0x6A703220 // "jp2 "
	signatureMagic  = 0x0D0A870A
	compressionType = 7
)

// Component declares one SIZ component.
type Component struct {
	Depth  int
	Signed bool
	Dx, Dy int // 0 means 1
}

// Fixture describes a synthetic codestream: a complete main header followed
// by a single tile-part whose packets are all empty. A real decoder
// reconstructs every coefficient as zero, so unsigned components decode to
// their midpoint (128 for 8 bits) and signed components to zero.
type Fixture struct {
	Width, Height int // Xsiz, Ysiz
	XOsiz, YOsiz  int
	Components    []Component

	Layers     int // 0 means 1
	Levels     int // decomposition levels
	MCT        bool
	Reversible bool
	Comment    string

	// JP2 only.
	ColorSpace jp2view.JP2ColorSpace // 0 derives sRGB or greyscale from the component count
	Palette    bool                  // maps component 0 through a PaletteEntries x 3 pclr box
	Alpha      bool                  // marks the last component as opacity in a cdef box
}

// PaletteEntries is the size of the pclr table written for Palette
// fixtures.
const PaletteEntries = 4

// PaletteEntry returns column col of palette entry e.
func PaletteEntry(e, col int) int32 { return int32(60*e + 20*col) }

// Gray8 returns a single-component 8-bit fixture.
func Gray8(w, h int) Fixture {
	return Fixture{Width: w, Height: h, Components: []Component{{Depth: 8}}, Levels: 5, Reversible: true}
}

// RGB8 returns a three-component 8-bit fixture.
func RGB8(w, h int) Fixture {
	return Fixture{
		Width: w, Height: h,
		Components: []Component{{Depth: 8}, {Depth: 8}, {Depth: 8}},
		Levels:     5, MCT: true, Reversible: true,
	}
}

// YCbCr420 returns an 8-bit fixture with 2x2 subsampled chroma.
func YCbCr420(w, h int) Fixture {
	return Fixture{
		Width: w, Height: h,
		Components: []Component{{Depth: 8}, {Depth: 8, Dx: 2, Dy: 2}, {Depth: 8, Dx: 2, Dy: 2}},
		Levels:     5, Reversible: true,
	}
}

// Indexed8 returns a single 8-bit index component mapped through a
// PaletteEntries x 3 sRGB palette when written as JP2.
func Indexed8(w, h int) Fixture {
	f := Gray8(w, h)
	f.Palette = true
	return f
}

// Codestream returns the fixture as a raw J2K codestream.
func (f Fixture) Codestream() []byte {
	var buf bytes.Buffer
	if err := WriteCodestream(&buf, f); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JP2 returns the fixture wrapped in a JP2 file.
func (f Fixture) JP2() []byte {
	var buf bytes.Buffer
	if err := WriteJP2(&buf, f); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// writer accumulates the first write error.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) bytes(p ...byte) {
	if w.err == nil {
		_, w.err = w.w.Write(p)
	}
}

func (w *writer) u16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.bytes(buf[:]...)
}

func (w *writer) u32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.bytes(buf[:]...)
}

// WriteCodestream writes f as SOC, SIZ, COD, QCD, optional COM, one
// tile-part of empty packets and EOC.
func WriteCodestream(out io.Writer, f Fixture) error {
	if len(f.Components) == 0 {
		return errors.New("enginetest: fixture has no components")
	}
	w := &writer{w: out}
	w.u16(markerSOC)
	writeSIZ(w, f)
	writeCOD(w, f)
	writeQCD(w, f)
	if f.Comment != "" {
		w.u16(markerCOM)
		w.u16(uint16(4 + len(f.Comment)))
		w.u16(1) // Rcom: Latin text
		w.bytes([]byte(f.Comment)...)
	}

	// One precinct per resolution, so LRCP holds layers*resolutions*components
	// packets. A packet header of a single zero byte marks the packet empty.
	packets := max(f.Layers, 1) * (f.Levels + 1) * len(f.Components)

	// SOT: Lsot=10, Isot=0, Psot covers SOT, SOD and the packets, TPsot=0, TNsot=1.
	w.u16(markerSOT)
	w.u16(10)
	w.u16(0)
	w.u32(uint32(2 + 10 + 2 + packets))
	w.bytes(0, 1)
	w.u16(markerSOD)
	w.bytes(make([]byte, packets)...)
	w.u16(markerEOC)
	return w.err
}

// writeSIZ writes the image and tile size segment: Lsiz = 38 + 3*Csiz.
func writeSIZ(w *writer, f Fixture) {
	w.u16(markerSIZ)
	w.u16(uint16(38 + 3*len(f.Components)))
	w.u16(0) // Rsiz
	w.u32(uint32(f.Width))
	w.u32(uint32(f.Height))
	w.u32(uint32(f.XOsiz))
	w.u32(uint32(f.YOsiz))
	w.u32(uint32(f.Width)) // single tile
	w.u32(uint32(f.Height))
	w.u32(0)
	w.u32(0)
	w.u16(uint16(len(f.Components)))
	for _, c := range f.Components {
		ssiz := byte(c.Depth - 1)
		if c.Signed {
			ssiz |= 0x80
		}
		w.bytes(ssiz, byte(max(c.Dx, 1)), byte(max(c.Dy, 1)))
	}
}

// writeCOD writes the coding style default segment with default precincts.
func writeCOD(w *writer, f Fixture) {
	w.u16(markerCOD)
	w.u16(12)
	w.bytes(0, 0) // Scod, progression order LRCP
	w.u16(uint16(max(f.Layers, 1)))
	var mct, wavelet byte
	if f.MCT {
		mct = 1
	}
	if f.Reversible {
		wavelet = 1
	}
	w.bytes(mct, byte(f.Levels), 4, 4, 0, wavelet) // 64x64 code-blocks
}

// writeQCD writes a no-quantization segment with one exponent per subband.
func writeQCD(w *writer, f Fixture) {
	subbands := 3*f.Levels + 1
	w.u16(markerQCD)
	w.u16(uint16(3 + subbands))
	w.bytes(2 << 5) // style 0, two guard bits
	for range subbands {
		w.bytes(8 << 3)
	}
}

// WriteJP2 writes f inside a JP2 file: signature, ftyp, jp2h (ihdr, colr,
// optional pclr, cmap and cdef) and jp2c.
func WriteJP2(out io.Writer, f Fixture) error {
	var cs bytes.Buffer
	if err := WriteCodestream(&cs, f); err != nil {
		return err
	}
	w := &writer{w: out}

	w.u32(12)
	w.u32(boxSignature)
	w.u32(signatureMagic)

	w.u32(20)
	w.u32(boxFileType)
	w.u32(brandJP2)
	w.u32(0)
	w.u32(brandJP2)

	var hdr bytes.Buffer
	writeJP2Header(&writer{w: &hdr}, f)
	w.u32(uint32(8 + hdr.Len()))
	w.u32(boxHeader)
	w.bytes(hdr.Bytes()...)

	w.u32(uint32(8 + cs.Len()))
	w.u32(boxCodestream)
	w.bytes(cs.Bytes()...)
	return w.err
}

func writeJP2Header(w *writer, f Fixture) {
	// ihdr: height, width, NC, BPC, C, UnkC, IPR
	w.u32(22)
	w.u32(boxImageHeader)
	w.u32(uint32(f.Height - f.YOsiz))
	w.u32(uint32(f.Width - f.XOsiz))
	w.u16(uint16(len(f.Components)))
	w.bytes(bpc(f.Components), compressionType, 0, 0)

	enumCS := f.ColorSpace
	if enumCS == 0 {
		enumCS = jp2view.JP2ColorGrayscale
		if len(f.Components) >= 3 || f.Palette {
			enumCS = jp2view.JP2ColorSRGB
		}
	}
	w.u32(15)
	w.u32(boxColorSpec)
	w.bytes(byte(jp2view.JP2ColorEnumerated), 0, 0)
	w.u32(uint32(enumCS))

	channels := len(f.Components)
	if f.Palette {
		const columns = 3
		w.u32(uint32(8 + 3 + columns + PaletteEntries*columns))
		w.u32(boxPalette)
		w.u16(PaletteEntries)
		w.bytes(columns, 7, 7, 7)
		for e := range PaletteEntries {
			for col := range columns {
				w.bytes(byte(PaletteEntry(e, col)))
			}
		}

		// Component 0 expands to the three palette columns; the rest pass
		// through.
		channels = columns + len(f.Components) - 1
		w.u32(uint32(8 + 4*channels))
		w.u32(boxComponentMap)
		for col := range columns {
			w.u16(0)
			w.bytes(1, byte(col))
		}
		for c := 1; c < len(f.Components); c++ {
			w.u16(uint16(c))
			w.bytes(0, 0)
		}
	}
	if f.Alpha {
		n := channels
		w.u32(uint32(8 + 2 + 6*n))
		w.u32(boxChannelDef)
		w.u16(uint16(n))
		for i := range n {
			typ, assoc := uint16(0), uint16(i+1)
			if i == n-1 {
				typ, assoc = 1, 0
			}
			w.u16(uint16(i))
			w.u16(typ)
			w.u16(assoc)
		}
	}
}

// bpc returns the ihdr BPC byte: the common depth and sign, or 0xFF when
// components differ.
func bpc(comps []Component) byte {
	first := comps[0]
	for _, c := range comps[1:] {
		if c.Depth != first.Depth || c.Signed != first.Signed {
			return 0xFF
		}
	}
	v := byte(first.Depth - 1)
	if first.Signed {
		v |= 0x80
	}
	return v
}
