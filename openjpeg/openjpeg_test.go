package openjpeg_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/jp2view"
	"github.com/ajroetker/jp2view/enginetest"
	"github.com/ajroetker/jp2view/openjpeg"
)

func TestDecodeConfigRegistered(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format string
		model  color.Model
	}{
		{"jp2 gray", enginetest.Gray8(10, 6).JP2(), "jp2", color.GrayModel},
		{"jp2 rgb", enginetest.RGB8(10, 6).JP2(), "jp2", color.RGBAModel},
		{"jp2 palette", enginetest.Indexed8(10, 6).JP2(), "jp2", color.RGBAModel},
		{"codestream of palette file", enginetest.Indexed8(10, 6).Codestream(), "j2c", color.GrayModel},
		{"codestream ycbcr", enginetest.YCbCr420(10, 6).Codestream(), "j2c", color.RGBAModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, format, err := image.DecodeConfig(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 10, cfg.Width)
			assert.Equal(t, 6, cfg.Height)
			assert.Equal(t, tt.model, cfg.ColorModel)
		})
	}
}

func TestDecodeConfigMalformed(t *testing.T) {
	data := enginetest.Gray8(10, 6).Codestream()[:20]
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	assert.ErrorIs(t, err, jp2view.ErrHeader)
}

func TestDecodeWithoutLibrary(t *testing.T) {
	if openjpeg.Available {
		t.Skip("built with libopenjp2")
	}
	log, _ := test.NewNullLogger()
	_, err := openjpeg.Decode(enginetest.Gray8(8, 8).Codestream(), jp2view.WithLogger(log))
	assert.ErrorIs(t, err, jp2view.ErrEngineUnavailable)
	assert.ErrorIs(t, err, jp2view.ErrConfiguration)
	assert.Empty(t, openjpeg.Version())
}
