package jp2view

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapImage(t *testing.T) {
	tests := []struct {
		name       string
		components int
		cs         ColorSpace
		pix        []byte
		want       color.Color
		model      color.Model
	}{
		{"gray", 1, ColorGray, []byte{90, 91}, color.Gray{Y: 91}, color.GrayModel},
		{"gray alpha", 2, ColorGray, []byte{1, 2, 90, 128}, color.NRGBA{90, 90, 90, 128}, color.NRGBAModel},
		{"rgb", 3, ColorRGB, []byte{0, 0, 0, 10, 20, 30}, color.RGBA{10, 20, 30, 255}, color.RGBAModel},
		{"rgba", 4, ColorRGB, []byte{0, 0, 0, 0, 10, 20, 30, 40}, color.NRGBA{10, 20, 30, 40}, color.NRGBAModel},
		{"cmyk", 4, ColorCMYK, []byte{0, 0, 0, 0, 10, 20, 30, 40}, color.CMYK{10, 20, 30, 40}, color.CMYKModel},
		{"five components", 5, ColorUnknown, []byte{0, 0, 0, 0, 0, 10, 20, 30, 40, 50}, color.RGBA{10, 20, 30, 255}, color.RGBAModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm := &Bitmap{
				Width: 2, Height: 1,
				Components: tt.components,
				Stride:     2 * tt.components,
				ColorSpace: tt.cs,
				Pix:        tt.pix,
			}
			img := bm.Image()
			require.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
			assert.Equal(t, tt.model, img.ColorModel())
			assert.Equal(t, tt.model, ColorModel(tt.components, tt.cs))
			assert.Equal(t, tt.want, img.At(1, 0))
		})
	}
}

func TestBitmapPixel(t *testing.T) {
	bm := &Bitmap{Width: 2, Height: 2, Components: 3, Stride: 6, Pix: []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	assert.Equal(t, 9, bm.PixOffset(1, 1))
	assert.Equal(t, []byte{10, 11, 12}, bm.Pixel(1, 1))
	assert.Equal(t, 3, cap(bm.Pixel(0, 0)))
}

func TestBitmapImageIsIndependent(t *testing.T) {
	bm := &Bitmap{Width: 1, Height: 1, Components: 1, Stride: 1, Pix: []byte{42}}
	img := bm.Image().(*image.Gray)
	img.Pix[0] = 0
	assert.Equal(t, byte(42), bm.Pix[0])
}
