// Package jp2view decodes JPEG 2000 codestreams (.j2k/.j2c) and JP2 files
// (.jp2) held in memory into interleaved 8-bit bitmaps.
//
// jp2view does not implement the wavelet, entropy or tiling stages itself.
// It drives a decoding Engine through a strict lifecycle and owns every
// native resource the engine hands out:
//
//	Configure -> ReadHeader -> Decode -> Release
//
// and then assembles the engine's component planes (each with its own
// subsampling, bit depth and signedness) into a single bitmap tagged with
// a color space.
//
// Decoding with libopenjp2 (build with -tags openjpeg):
//
//	bm, err := openjpeg.Decode(data, jp2view.WithReduce(1))
//	if err != nil {
//	    var jerr *jp2view.Error
//	    if errors.As(err, &jerr) {
//	        log.Printf("%s failed during %s: %v", jerr.Kind, jerr.Phase, jerr.Diagnostics)
//	    }
//	}
//
// Reading only the main header, without an engine:
//
//	h, err := jp2view.DecodeConfig(data)
//
// Importing the openjpeg package registers "jp2" and "j2c" with the image
// package:
//
//	import _ "github.com/ajroetker/jp2view/openjpeg"
//	img, _, err := image.Decode(reader)
package jp2view
