// Package openjpeg provides the libopenjp2 decoding engine for jp2view and
// registers the "jp2" and "j2c" formats with the image package.
//
// The binding is compiled only with the openjpeg build tag and cgo enabled:
//
//	go build -tags openjpeg ./...
//
// Without it, Engine.Create fails with jp2view.ErrEngineUnavailable.
package openjpeg

import (
	"image"
	"io"

	"github.com/ajroetker/jp2view"
)

// Engine is the libopenjp2 decoding engine. It holds no state; one Engine
// may serve any number of concurrent sessions.
type Engine struct{}

// New returns the libopenjp2 engine.
func New() *Engine { return &Engine{} }

var _ jp2view.Engine = (*Engine)(nil)

// Decode decodes data with libopenjp2.
func Decode(data []byte, opts ...jp2view.Option) (*jp2view.Bitmap, error) {
	return jp2view.Decode(New(), data, opts...)
}

func decodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	bm, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return bm.Image(), nil
}

func decodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	h, err := jp2view.DecodeConfig(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: h.ColorModel(),
		Width:      h.Width(),
		Height:     h.Height(),
	}, nil
}

func init() {
	image.RegisterFormat("jp2", "\x00\x00\x00\x0cjP  \x0d\x0a\x87\x0a", decodeImage, decodeConfig)
	image.RegisterFormat("j2c", "\xff\x4f\xff\x51", decodeImage, decodeConfig)
}
