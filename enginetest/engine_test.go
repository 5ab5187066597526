package enginetest

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/jp2view"
)

func TestFixturesParse(t *testing.T) {
	tests := []struct {
		name       string
		f          Fixture
		components int
		dx         int
	}{
		{"gray", Gray8(9, 7), 1, 1},
		{"rgb", RGB8(9, 7), 3, 1},
		{"ycbcr 4:2:0", YCbCr420(9, 7), 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, data := range [][]byte{tt.f.Codestream(), tt.f.JP2()} {
				h, err := jp2view.ParseHeader(data)
				require.NoError(t, err)
				assert.Equal(t, 9, h.Width())
				assert.Equal(t, 7, h.Height())
				require.Len(t, h.Components, tt.components)
				assert.Equal(t, tt.dx, h.Components[len(h.Components)-1].Dx)
				assert.Equal(t, 5, h.NumDecompLevels)
				assert.True(t, h.Reversible)
			}
		})
	}
}

func TestFixtureComment(t *testing.T) {
	f := Gray8(4, 4)
	f.Comment = "made by enginetest"
	h, err := jp2view.ParseHeader(f.Codestream())
	require.NoError(t, err)
	assert.Equal(t, []string{"made by enginetest"}, h.Comments)
}

func TestPattern(t *testing.T) {
	assert.Equal(t, int32(0), Pattern(0, 0, 0, 8, false))
	assert.Equal(t, int32(5), Pattern(0, 2, 3, 8, false))
	assert.Equal(t, int32(17), Pattern(1, 0, 0, 8, false))
	assert.Equal(t, int32(1), Pattern(0, 200, 57, 8, false))
	assert.Equal(t, int32(-128), Pattern(0, 0, 0, 8, true))
	assert.Equal(t, int32(1), Pattern(0, 1, 0, 1, false))
	assert.Equal(t, int32(0), Pattern(0, 1, 1, 1, false))
}

func TestSynthesizeReduce(t *testing.T) {
	h, err := jp2view.ParseHeader(YCbCr420(9, 7).Codestream())
	require.NoError(t, err)

	img := synthesize(h, jp2view.Parameters{Reduce: 1})
	assert.Equal(t, 5, img.X1)
	assert.Equal(t, 4, img.Y1)
	require.Len(t, img.Planes, 3)
	assert.Equal(t, 5, img.Planes[0].Width)
	assert.Equal(t, 3, img.Planes[1].Width)
	assert.Equal(t, 2, img.Planes[1].Height)
	assert.Len(t, img.Planes[1].Samples, 6)
}

func TestSynthesizePalette(t *testing.T) {
	f := Fixture{
		Width: 6, Height: 2, Levels: 1,
		Components: []Component{{Depth: 8}, {Depth: 4}},
		Palette:    true,
	}
	h, err := jp2view.ParseHeader(f.JP2())
	require.NoError(t, err)

	t.Run("expanded", func(t *testing.T) {
		img := synthesize(h, jp2view.Parameters{})
		assert.Equal(t, jp2view.ColorRGB, img.ColorSpace)
		require.Len(t, img.Planes, 4)
		for col := range 3 {
			p := img.Planes[col]
			assert.Equal(t, 8, p.Depth)
			for x := range 6 {
				index := min(int(Pattern(0, x, 1, 8, false)), PaletteEntries-1)
				assert.Equal(t, PaletteEntry(index, col), p.At(x, 1), "column %d at x=%d", col, x)
			}
		}
		assert.Equal(t, 4, img.Planes[3].Depth)
		assert.Equal(t, Pattern(1, 5, 1, 4, false), img.Planes[3].At(5, 1))
	})

	t.Run("color boxes ignored", func(t *testing.T) {
		img := synthesize(h, jp2view.Parameters{IgnoreColorBoxes: true})
		assert.Equal(t, jp2view.ColorIndexed, img.ColorSpace)
		require.Len(t, img.Planes, 2)
		assert.Equal(t, Pattern(0, 3, 0, 8, false), img.Planes[0].At(3, 0))
	})
}

// The tile-part holds exactly one empty packet per layer, resolution and
// component, and Psot covers it.
func TestFixtureTilePart(t *testing.T) {
	tests := []struct {
		name    string
		f       Fixture
		packets int
	}{
		{"gray", Gray8(8, 8), 6},
		{"rgb", RGB8(8, 8), 18},
		{"layers", Fixture{Width: 4, Height: 4, Levels: 2, Layers: 3, Components: []Component{{Depth: 8}}}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.f.Codestream()
			sot := bytes.Index(data, []byte{0xFF, 0x90})
			require.Positive(t, sot)
			psot := int(binary.BigEndian.Uint32(data[sot+6:]))
			assert.Equal(t, 14+tt.packets, psot)
			assert.Equal(t, len(data)-2, sot+psot, "EOC follows the tile-part")
			assert.Equal(t, []byte{0xFF, 0x93}, data[sot+12:sot+14])
			assert.Equal(t, make([]byte, tt.packets), data[sot+14:sot+psot])
		})
	}
}

func TestCountsBalanced(t *testing.T) {
	assert.True(t, Counts{}.Balanced())
	assert.True(t, Counts{Codecs: 2, CodecsDestroyed: 2, Streams: 1, StreamsDestroyed: 1}.Balanced())
	assert.False(t, Counts{Codecs: 1}.Balanced())
	assert.False(t, Counts{Codecs: 1, CodecsDestroyed: 1, DoubleDestroys: 1}.Balanced())
	assert.Equal(t, 2, Counts{Codecs: 1, Images: 1}.Live())
}

func TestEngineCountsDoubleDestroy(t *testing.T) {
	e := New()
	c, err := e.Create(jp2view.FormatJ2K)
	require.NoError(t, err)
	c.Destroy()
	c.Destroy()

	got := e.Counts()
	assert.Equal(t, 1, got.CodecsDestroyed)
	assert.Equal(t, 1, got.DoubleDestroys)
	assert.False(t, got.Balanced())
}

func TestEngineScriptedDiagnostics(t *testing.T) {
	e := New()
	e.Fail = StepConfigure
	e.Emit = map[Step][]Message{
		StepConfigure: {
			{Severity: jp2view.SeverityInfo, Text: "info"},
			{Severity: jp2view.SeverityWarning, Text: "warn"},
		},
	}
	c, err := e.Create(jp2view.FormatJP2)
	require.NoError(t, err)
	defer c.Destroy()

	var got []string
	c.SetDiagnosticHandlers(jp2view.Handlers{
		Info:    func(m string) { got = append(got, "I:"+m) },
		Warning: func(m string) { got = append(got, "W:"+m) },
		Error:   func(m string) { got = append(got, "E:"+m) },
	})
	assert.False(t, c.Configure(jp2view.Parameters{Reduce: 2}))
	assert.Equal(t, []string{"I:info", "W:warn", "E:invalid decoder parameters"}, got)
	assert.Equal(t, []jp2view.Parameters{{Reduce: 2}}, e.Parameters())
	assert.Equal(t, []jp2view.Format{jp2view.FormatJP2}, e.Formats())
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "read-header", StepReadHeader.String())
	assert.Equal(t, "step(42)", Step(42).String())
}
