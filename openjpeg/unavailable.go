//go:build !openjpeg || !cgo

package openjpeg

import "github.com/ajroetker/jp2view"

// Available reports whether the package was built with libopenjp2.
const Available = false

// Version returns the linked libopenjp2 version, or "" when none is linked.
func Version() string { return "" }

// DefaultParameters returns zero parameters.
func (*Engine) DefaultParameters() jp2view.Parameters { return jp2view.Parameters{} }

// Create always fails: build with -tags openjpeg and cgo enabled to link
// libopenjp2.
func (*Engine) Create(jp2view.Format) (jp2view.Codec, error) {
	return nil, jp2view.ErrEngineUnavailable
}
