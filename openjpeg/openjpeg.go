//go:build openjpeg && cgo

package openjpeg

/*
#cgo pkg-config: libopenjp2
#include <stdint.h>
#include <stdlib.h>
#ifndef __has_include
#define __has_include(x) 0
#endif
#if __has_include(<openjpeg-2.5/openjpeg.h>)
#include <openjpeg-2.5/openjpeg.h>
#elif __has_include(<openjpeg-2.4/openjpeg.h>)
#include <openjpeg-2.4/openjpeg.h>
#else
#include <openjpeg.h>
#endif

size_t goJP2ViewRead(void *user, void *buf, size_t n);
int64_t goJP2ViewSkip(void *user, int64_t n);
int goJP2ViewSeek(void *user, int64_t off);
void goJP2ViewStreamFree(void *user);
void goJP2ViewMessage(void *client, int severity, char *msg);

static OPJ_SIZE_T jp2v_read(void *buf, OPJ_SIZE_T n, void *user) {
	size_t got = goJP2ViewRead(user, buf, (size_t)n);
	if (got == 0) {
		return (OPJ_SIZE_T)-1;
	}
	return (OPJ_SIZE_T)got;
}

static OPJ_OFF_T jp2v_skip(OPJ_OFF_T n, void *user) {
	return (OPJ_OFF_T)goJP2ViewSkip(user, (int64_t)n);
}

static OPJ_BOOL jp2v_seek(OPJ_OFF_T off, void *user) {
	return goJP2ViewSeek(user, (int64_t)off) ? OPJ_TRUE : OPJ_FALSE;
}

static void jp2v_free(void *user) {
	goJP2ViewStreamFree(user);
	free(user);
}

static opj_stream_t* jp2v_stream_create(void *user, OPJ_UINT64 length) {
	opj_stream_t *stream = opj_stream_create(OPJ_J2K_STREAM_CHUNK_SIZE, OPJ_TRUE);
	if (!stream) {
		return NULL;
	}
	opj_stream_set_user_data(stream, user, jp2v_free);
	opj_stream_set_user_data_length(stream, length);
	opj_stream_set_read_function(stream, jp2v_read);
	opj_stream_set_skip_function(stream, jp2v_skip);
	opj_stream_set_seek_function(stream, jp2v_seek);
	return stream;
}

static void jp2v_info(const char *msg, void *client) {
	goJP2ViewMessage(client, 0, (char*)msg);
}

static void jp2v_warning(const char *msg, void *client) {
	goJP2ViewMessage(client, 1, (char*)msg);
}

static void jp2v_error(const char *msg, void *client) {
	goJP2ViewMessage(client, 2, (char*)msg);
}

static void jp2v_install_handlers(opj_codec_t *codec, void *client) {
	opj_set_info_handler(codec, jp2v_info, client);
	opj_set_warning_handler(codec, jp2v_warning, client);
	opj_set_error_handler(codec, jp2v_error, client);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"strings"
	"unsafe"

	"github.com/ajroetker/jp2view"
)

// Available reports whether the package was built with libopenjp2.
const Available = true

// Version returns the linked libopenjp2 version.
func Version() string { return C.GoString(C.opj_version()) }

// DefaultParameters reads libopenjp2's default decoder parameters.
func (*Engine) DefaultParameters() jp2view.Parameters {
	var params C.opj_dparameters_t
	C.opj_set_default_decoder_parameters(&params)
	return jp2view.Parameters{
		Reduce:    int(params.cp_reduce),
		MaxLayers: int(params.cp_layer),
	}
}

// Create allocates a libopenjp2 decompressor for format.
func (*Engine) Create(format jp2view.Format) (jp2view.Codec, error) {
	codecFormat := C.OPJ_CODEC_J2K
	if format == jp2view.FormatJP2 {
		codecFormat = C.OPJ_CODEC_JP2
	}
	ptr := C.opj_create_decompress(C.OPJ_CODEC_FORMAT(codecFormat))
	if ptr == nil {
		return nil, fmt.Errorf("%w: opj_create_decompress(%s)", jp2view.ErrConfiguration, format)
	}
	return &codec{ptr: ptr, format: format}, nil
}

// newUserData stores a handle to v in C memory so it can travel through
// libopenjp2's void* user data.
func newUserData(v any) unsafe.Pointer {
	h := cgo.NewHandle(v)
	ptr := C.malloc(C.size_t(unsafe.Sizeof(h)))
	*(*cgo.Handle)(ptr) = h
	return ptr
}

func userValue(ptr unsafe.Pointer) any {
	if ptr == nil {
		return nil
	}
	return (*(*cgo.Handle)(ptr)).Value()
}

func deleteUserData(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	(*(*cgo.Handle)(ptr)).Delete()
}

type codec struct {
	ptr      *C.opj_codec_t
	format   jp2view.Format
	handlers jp2view.Handlers
	client   unsafe.Pointer
	source   *jp2view.ByteSource
	params   jp2view.Parameters
}

func (c *codec) SetDiagnosticHandlers(h jp2view.Handlers) {
	c.handlers = h
	if c.client == nil {
		c.client = newUserData(c)
	}
	C.jp2v_install_handlers(c.ptr, c.client)
}

func (c *codec) emit(severity int, msg string) {
	msg = strings.TrimRight(msg, "\n")
	var fn func(string)
	switch severity {
	case 0:
		fn = c.handlers.Info
	case 1:
		fn = c.handlers.Warning
	default:
		fn = c.handlers.Error
	}
	if fn != nil {
		fn(msg)
	}
}

func (c *codec) Configure(p jp2view.Parameters) bool {
	var params C.opj_dparameters_t
	C.opj_set_default_decoder_parameters(&params)
	params.cp_reduce = C.OPJ_UINT32(p.Reduce)
	params.cp_layer = C.OPJ_UINT32(p.MaxLayers)
	if p.IgnoreColorBoxes {
		params.flags |= C.OPJ_DPARAMETERS_IGNORE_PCLR_CMAP_CDEF_FLAG
	}
	if C.opj_setup_decoder(c.ptr, &params) == 0 {
		return false
	}
	if p.Threads > 0 && C.opj_codec_set_threads(c.ptr, C.int(p.Threads)) == 0 {
		c.emit(1, fmt.Sprintf("thread count %d not supported, decoding single-threaded", p.Threads))
	}
	c.params = p
	return true
}

func (c *codec) OpenStream(src *jp2view.ByteSource) (jp2view.Stream, bool) {
	user := newUserData(src)
	ptr := C.jp2v_stream_create(user, C.OPJ_UINT64(src.Len()))
	if ptr == nil {
		deleteUserData(user)
		C.free(user)
		return nil, false
	}
	c.source = src
	return &stream{ptr: ptr}, true
}

func (c *codec) ReadHeader(s jp2view.Stream) (jp2view.ImageHandle, bool) {
	st, ok := s.(*stream)
	if !ok {
		return nil, false
	}
	var img *C.opj_image_t
	ok = C.opj_read_header(st.ptr, c.ptr, &img) != 0
	if img == nil {
		return nil, false
	}
	return &imageHandle{ptr: img, codec: c}, ok
}

func (c *codec) Decode(h jp2view.ImageHandle, s jp2view.Stream) bool {
	img, ok1 := h.(*imageHandle)
	st, ok2 := s.(*stream)
	if !ok1 || !ok2 {
		return false
	}
	if C.opj_decode(c.ptr, st.ptr, img.ptr) == 0 {
		return false
	}
	return C.opj_end_decompress(c.ptr, st.ptr) != 0
}

func (c *codec) Destroy() {
	if c.ptr != nil {
		C.opj_destroy_codec(c.ptr)
		c.ptr = nil
	}
	if c.client != nil {
		deleteUserData(c.client)
		C.free(c.client)
		c.client = nil
	}
}

type stream struct {
	ptr *C.opj_stream_t
}

// Destroy frees the stream; libopenjp2 then releases the user data through
// jp2v_free.
func (s *stream) Destroy() {
	if s.ptr != nil {
		C.opj_stream_destroy(s.ptr)
		s.ptr = nil
	}
}

type imageHandle struct {
	ptr   *C.opj_image_t
	codec *codec
}

func (h *imageHandle) Destroy() {
	if h.ptr != nil {
		C.opj_image_destroy(h.ptr)
		h.ptr = nil
	}
}

// Export copies the component planes out of the opj_image_t. With a reduce
// factor libopenjp2 keeps the image bounds at full resolution, so the
// reference grid is scaled down to match the components.
func (h *imageHandle) Export() (*jp2view.Image, error) {
	img := h.ptr
	if img == nil || img.numcomps == 0 || img.comps == nil {
		return nil, fmt.Errorf("%w: image has no components", jp2view.ErrDecode)
	}
	comps := unsafe.Slice(img.comps, int(img.numcomps))
	factor := uint(comps[0].factor)
	scale := func(v C.OPJ_UINT32) int {
		d := 1 << factor
		return (int(v) + d - 1) / d
	}

	out := &jp2view.Image{
		X0:     scale(img.x0),
		Y0:     scale(img.y0),
		X1:     scale(img.x1),
		Y1:     scale(img.y1),
		Planes: make([]jp2view.Plane, len(comps)),
	}
	for i := range comps {
		comp := &comps[i]
		if comp.data == nil {
			return nil, fmt.Errorf("%w: component %d was not decoded", jp2view.ErrDecode, i)
		}
		w, hgt := int(comp.w), int(comp.h)
		samples := make([]int32, w*hgt)
		src := unsafe.Slice((*int32)(unsafe.Pointer(comp.data)), len(samples))
		copy(samples, src)
		out.Planes[i] = jp2view.Plane{
			Width:   w,
			Height:  hgt,
			Dx:      int(comp.dx),
			Dy:      int(comp.dy),
			Depth:   int(comp.prec),
			Signed:  comp.sgnd != 0,
			Samples: samples,
		}
	}
	out.ColorSpace = h.codec.colorSpace(img.color_space, out.Planes)
	return out, nil
}

func (c *codec) colorSpace(cs C.OPJ_COLOR_SPACE, planes []jp2view.Plane) jp2view.ColorSpace {
	switch cs {
	case C.OPJ_CLRSPC_GRAY:
		return jp2view.ColorGray
	case C.OPJ_CLRSPC_SRGB:
		return jp2view.ColorRGB
	case C.OPJ_CLRSPC_SYCC, C.OPJ_CLRSPC_EYCC:
		return jp2view.ColorYCbCr
	case C.OPJ_CLRSPC_CMYK:
		return jp2view.ColorCMYK
	}
	if c.params.IgnoreColorBoxes && c.source != nil {
		if hdr, err := jp2view.ParseHeader(c.source.Bytes()); err == nil && hdr.JP2 != nil && hdr.JP2.Palette != nil {
			return jp2view.ColorIndexed
		}
	}
	return jp2view.InferColorSpace(planes)
}

func sourceOf(user unsafe.Pointer) *jp2view.ByteSource {
	src, _ := userValue(user).(*jp2view.ByteSource)
	return src
}

//export goJP2ViewRead
func goJP2ViewRead(user, buf unsafe.Pointer, n C.size_t) C.size_t {
	src := sourceOf(user)
	if src == nil || buf == nil || n == 0 {
		return 0
	}
	return C.size_t(src.Read(unsafe.Slice((*byte)(buf), int(n))))
}

//export goJP2ViewSkip
func goJP2ViewSkip(user unsafe.Pointer, n C.int64_t) C.int64_t {
	src := sourceOf(user)
	if src == nil {
		return -1
	}
	return C.int64_t(src.Skip(int64(n)))
}

//export goJP2ViewSeek
func goJP2ViewSeek(user unsafe.Pointer, off C.int64_t) C.int {
	src := sourceOf(user)
	if src == nil || off < 0 || int64(off) > src.Len() {
		return 0
	}
	src.Seek(int64(off))
	return 1
}

//export goJP2ViewStreamFree
func goJP2ViewStreamFree(user unsafe.Pointer) {
	deleteUserData(user)
}

//export goJP2ViewMessage
func goJP2ViewMessage(client unsafe.Pointer, severity C.int, msg *C.char) {
	c, ok := userValue(client).(*codec)
	if !ok || msg == nil {
		return
	}
	// A panicking sink must not unwind through C frames.
	defer func() { _ = recover() }()
	c.emit(int(severity), C.GoString(msg))
}
