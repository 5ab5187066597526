package jp2view

import (
	"image"
	"image/color"
)

// Bitmap is the decoded, display-ready result: 8-bit samples interleaved in
// component order.
type Bitmap struct {
	Width      int
	Height     int
	Components int
	Stride     int // bytes per row: Width * Components
	ColorSpace ColorSpace
	Pix        []byte
}

// PixOffset returns the index of the first sample of pixel (x, y).
func (b *Bitmap) PixOffset(x, y int) int {
	return y*b.Stride + x*b.Components
}

// Pixel returns the samples of pixel (x, y). The slice aliases Pix.
func (b *Bitmap) Pixel(x, y int) []byte {
	i := b.PixOffset(x, y)
	return b.Pix[i : i+b.Components : i+b.Components]
}

// Image returns a standard library image with the bitmap's content:
// image.Gray for one component, image.NRGBA for gray+alpha and for four
// non-CMYK components, image.CMYK for CMYK, and image.RGBA for three or
// more components (extra components are dropped).
func (b *Bitmap) Image() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch {
	case b.Components == 1:
		img := image.NewGray(rect)
		for y := range b.Height {
			copy(img.Pix[y*img.Stride:], b.Pix[y*b.Stride:y*b.Stride+b.Width])
		}
		return img

	case b.Components == 2:
		img := image.NewNRGBA(rect)
		for y := range b.Height {
			for x := range b.Width {
				p := b.Pixel(x, y)
				img.SetNRGBA(x, y, color.NRGBA{R: p[0], G: p[0], B: p[0], A: p[1]})
			}
		}
		return img

	case b.Components == 4 && b.ColorSpace == ColorCMYK:
		img := image.NewCMYK(rect)
		for y := range b.Height {
			copy(img.Pix[y*img.Stride:], b.Pix[y*b.Stride:(y+1)*b.Stride])
		}
		return img

	case b.Components == 4:
		img := image.NewNRGBA(rect)
		for y := range b.Height {
			copy(img.Pix[y*img.Stride:], b.Pix[y*b.Stride:(y+1)*b.Stride])
		}
		return img

	default:
		img := image.NewRGBA(rect)
		for y := range b.Height {
			for x := range b.Width {
				p := b.Pixel(x, y)
				i := img.PixOffset(x, y)
				img.Pix[i+0] = p[0]
				img.Pix[i+1] = p[1]
				img.Pix[i+2] = p[2]
				img.Pix[i+3] = 255
			}
		}
		return img
	}
}

// ColorModel returns the color model of the image Decode produces for a
// file with header h, with color boxes honored.
func (h *Header) ColorModel() color.Model {
	cs := h.ColorSpace
	if cs == ColorYCbCr && h.OutputComponents() >= 3 {
		cs = ColorRGB
	}
	return ColorModel(h.OutputComponents(), cs)
}

// ColorModel returns the color model of the standard library image produced
// for a bitmap with the given component count and color space.
func ColorModel(components int, cs ColorSpace) color.Model {
	switch {
	case components == 1:
		return color.GrayModel
	case components == 2:
		return color.NRGBAModel
	case components == 4 && cs == ColorCMYK:
		return color.CMYKModel
	case components == 4:
		return color.NRGBAModel
	default:
		return color.RGBAModel
	}
}
