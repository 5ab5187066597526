// Package enginetest provides an instrumented jp2view.Engine for tests and
// synthetic codestream fixtures to feed it.
//
// The stub engine counts every native-resource acquisition and release,
// can be scripted to fail, panic or emit diagnostics at any step, and reads
// real main headers through the ByteSource it is given, so malformed input
// fails in the header step exactly as it would with a real engine.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ajroetker/jp2view"
)

// Step is an engine call that can be scripted.
type Step int

const (
	StepNone Step = iota
	StepCreate
	StepConfigure
	StepOpenStream
	StepReadHeader
	StepDecode
	StepExport
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepCreate:
		return "create"
	case StepConfigure:
		return "configure"
	case StepOpenStream:
		return "open-stream"
	case StepReadHeader:
		return "read-header"
	case StepDecode:
		return "decode"
	case StepExport:
		return "export"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Message is a scripted diagnostic.
type Message struct {
	Severity jp2view.Severity
	Text     string
}

// Counts reports resource bookkeeping across every session that used the
// engine.
type Counts struct {
	Codecs, CodecsDestroyed   int
	Streams, StreamsDestroyed int
	Images, ImagesDestroyed   int
	DoubleDestroys            int
}

// Balanced reports whether every acquired resource was destroyed exactly
// once.
func (c Counts) Balanced() bool {
	return c.Codecs == c.CodecsDestroyed &&
		c.Streams == c.StreamsDestroyed &&
		c.Images == c.ImagesDestroyed &&
		c.DoubleDestroys == 0
}

// Live returns the number of resources not yet destroyed.
func (c Counts) Live() int {
	return c.Codecs - c.CodecsDestroyed + c.Streams - c.StreamsDestroyed + c.Images - c.ImagesDestroyed
}

// Engine is the instrumented stub. Configure its exported fields before
// the first session; afterwards they are only read, so one Engine may serve
// concurrent sessions.
type Engine struct {
	// Fail makes the given step report failure.
	Fail Step

	// Panic makes the given step panic.
	Panic Step

	// Emit lists diagnostics emitted at the start of each step.
	Emit map[Step][]Message

	// Image, when set, is returned (copied) by Export instead of planes
	// synthesized from the header.
	Image *jp2view.Image

	// ColorSpace overrides the color space derived from the header.
	ColorSpace jp2view.ColorSpace

	// HandleOnHeaderFailure makes a failed ReadHeader still return an image
	// handle, the way some engines allocate it before validating.
	HandleOnHeaderFailure bool

	// Defaults is returned by DefaultParameters.
	Defaults jp2view.Parameters

	mu      sync.Mutex
	counts  Counts
	formats []jp2view.Format
	params  []jp2view.Parameters
}

// New returns a stub engine that succeeds at every step.
func New() *Engine { return &Engine{} }

var _ jp2view.Engine = (*Engine)(nil)

// Counts returns a snapshot of the resource counters.
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// Formats returns the formats codecs were created for, in order.
func (e *Engine) Formats() []jp2view.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]jp2view.Format(nil), e.formats...)
}

// Parameters returns the parameters passed to Configure, in order.
func (e *Engine) Parameters() []jp2view.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]jp2view.Parameters(nil), e.params...)
}

func (e *Engine) update(fn func(c *Counts)) {
	e.mu.Lock()
	fn(&e.counts)
	e.mu.Unlock()
}

func (e *Engine) DefaultParameters() jp2view.Parameters { return e.Defaults }

func (e *Engine) Create(format jp2view.Format) (jp2view.Codec, error) {
	e.step(StepCreate, jp2view.Handlers{})
	if e.Fail == StepCreate {
		return nil, fmt.Errorf("enginetest: create %s codec failed", format)
	}
	e.mu.Lock()
	e.counts.Codecs++
	e.formats = append(e.formats, format)
	e.mu.Unlock()
	return &codec{engine: e, format: format}, nil
}

// step emits the scripted diagnostics for s and panics if scripted to.
func (e *Engine) step(s Step, h jp2view.Handlers) {
	for _, m := range e.Emit[s] {
		var fn func(string)
		switch m.Severity {
		case jp2view.SeverityInfo:
			fn = h.Info
		case jp2view.SeverityWarning:
			fn = h.Warning
		default:
			fn = h.Error
		}
		if fn != nil {
			fn(m.Text)
		}
	}
	if e.Panic == s {
		panic(fmt.Sprintf("enginetest: scripted panic in %s", s))
	}
}

type codec struct {
	engine    *Engine
	format    jp2view.Format
	handlers  jp2view.Handlers
	params    jp2view.Parameters
	destroyed bool
}

func (c *codec) SetDiagnosticHandlers(h jp2view.Handlers) { c.handlers = h }

func (c *codec) errorf(format string, args ...any) {
	if c.handlers.Error != nil {
		c.handlers.Error(fmt.Sprintf(format, args...))
	}
}

func (c *codec) Configure(p jp2view.Parameters) bool {
	c.engine.step(StepConfigure, c.handlers)
	c.engine.mu.Lock()
	c.engine.params = append(c.engine.params, p)
	c.engine.mu.Unlock()
	if c.engine.Fail == StepConfigure {
		c.errorf("invalid decoder parameters")
		return false
	}
	c.params = p
	return true
}

func (c *codec) OpenStream(src *jp2view.ByteSource) (jp2view.Stream, bool) {
	c.engine.step(StepOpenStream, c.handlers)
	if c.engine.Fail == StepOpenStream || src == nil {
		return nil, false
	}
	c.engine.update(func(n *Counts) { n.Streams++ })
	return &stream{engine: c.engine, src: src}, true
}

// ReadHeader pulls the whole input through the stream in small chunks and
// parses its main header.
func (c *codec) ReadHeader(s jp2view.Stream) (jp2view.ImageHandle, bool) {
	c.engine.step(StepReadHeader, c.handlers)
	st, ok := s.(*stream)
	if !ok {
		return nil, false
	}

	st.src.Seek(0)
	data := make([]byte, 0, st.src.Len())
	chunk := make([]byte, 512)
	for {
		n := st.src.Read(chunk)
		if n == 0 {
			break
		}
		data = append(data, chunk[:n]...)
	}

	hdr, err := jp2view.ParseHeader(data)
	switch {
	case err != nil:
		c.errorf("failed to read the header: %v", err)
	case c.engine.Fail == StepReadHeader:
		c.errorf("failed to read the header")
		err = errors.New("scripted")
	case hdr.Format != c.format:
		c.errorf("%s codec cannot read a %s file", c.format, hdr.Format)
		err = errors.New("format mismatch")
	}
	if err != nil {
		if c.engine.HandleOnHeaderFailure {
			return c.newImage(nil), false
		}
		return nil, false
	}
	return c.newImage(hdr), true
}

func (c *codec) newImage(hdr *jp2view.Header) *imageHandle {
	c.engine.update(func(n *Counts) { n.Images++ })
	return &imageHandle{engine: c.engine, header: hdr}
}

func (c *codec) Decode(h jp2view.ImageHandle, s jp2view.Stream) bool {
	c.engine.step(StepDecode, c.handlers)
	img, ok := h.(*imageHandle)
	if !ok || img.header == nil {
		return false
	}
	if c.engine.Fail == StepDecode {
		c.errorf("stream too short")
		return false
	}
	if c.params.Reduce > img.header.NumDecompLevels {
		c.errorf("cannot discard %d resolution levels, only %d available",
			c.params.Reduce, img.header.NumDecompLevels)
		return false
	}
	if c.engine.Image != nil {
		img.decoded = cloneImage(c.engine.Image)
	} else {
		img.decoded = synthesize(img.header, c.params)
	}
	if c.engine.ColorSpace != jp2view.ColorUnknown {
		img.decoded.ColorSpace = c.engine.ColorSpace
	}
	return true
}

func (c *codec) Destroy() {
	c.engine.update(func(n *Counts) {
		if c.destroyed {
			n.DoubleDestroys++
			return
		}
		n.CodecsDestroyed++
	})
	c.destroyed = true
}

type stream struct {
	engine    *Engine
	src       *jp2view.ByteSource
	destroyed bool
}

func (s *stream) Destroy() {
	s.engine.update(func(n *Counts) {
		if s.destroyed {
			n.DoubleDestroys++
			return
		}
		n.StreamsDestroyed++
	})
	s.destroyed = true
}

type imageHandle struct {
	engine    *Engine
	header    *jp2view.Header
	decoded   *jp2view.Image
	destroyed bool
}

func (h *imageHandle) Export() (*jp2view.Image, error) {
	h.engine.step(StepExport, jp2view.Handlers{})
	if h.engine.Fail == StepExport {
		return nil, fmt.Errorf("%w: scripted export failure", jp2view.ErrDecode)
	}
	if h.destroyed || h.decoded == nil {
		return nil, fmt.Errorf("%w: image not decoded", jp2view.ErrDecode)
	}
	return cloneImage(h.decoded), nil
}

func (h *imageHandle) Destroy() {
	h.engine.update(func(n *Counts) {
		if h.destroyed {
			n.DoubleDestroys++
			return
		}
		n.ImagesDestroyed++
	})
	h.destroyed = true
	h.decoded = nil
}

func cloneImage(src *jp2view.Image) *jp2view.Image {
	img := *src
	img.Planes = make([]jp2view.Plane, len(src.Planes))
	for i, p := range src.Planes {
		p.Samples = append([]int32(nil), p.Samples...)
		img.Planes[i] = p
	}
	return &img
}

// synthesize builds planes matching hdr at the requested reduction. Sample
// values follow Pattern. A JP2 palette is expanded through its cmap unless
// color boxes are ignored, in which case the index plane comes back tagged
// ColorIndexed.
func synthesize(hdr *jp2view.Header, params jp2view.Parameters) *jp2view.Image {
	d := 1 << params.Reduce
	scale := func(v int) int { return (v + d - 1) / d }
	img := &jp2view.Image{
		X0:         scale(hdr.XOsiz),
		Y0:         scale(hdr.YOsiz),
		X1:         scale(hdr.Xsiz),
		Y1:         scale(hdr.Ysiz),
		ColorSpace: hdr.ColorSpace,
		Planes:     make([]jp2view.Plane, len(hdr.Components)),
	}
	for c, info := range hdr.Components {
		p := jp2view.Plane{
			Width:  img.PlaneWidth(info.Dx),
			Height: img.PlaneHeight(info.Dy),
			Dx:     info.Dx,
			Dy:     info.Dy,
			Depth:  info.Depth,
			Signed: info.Signed,
		}
		p.Samples = make([]int32, p.Width*p.Height)
		for y := range p.Height {
			for x := range p.Width {
				p.Samples[y*p.Width+x] = Pattern(c, x, y, info.Depth, info.Signed)
			}
		}
		img.Planes[c] = p
	}

	switch {
	case hdr.JP2 == nil || hdr.JP2.Palette == nil:
	case params.IgnoreColorBoxes:
		img.ColorSpace = jp2view.ColorIndexed
	case hdr.JP2.PaletteApplied():
		img.Planes = applyPalette(img.Planes, hdr.JP2)
	}
	return img
}

// applyPalette builds one plane per cmap entry. Entries naming a missing
// component or palette column leave the planes as they are.
func applyPalette(planes []jp2view.Plane, meta *jp2view.JP2Metadata) []jp2view.Plane {
	pal := meta.Palette
	out := make([]jp2view.Plane, len(meta.ComponentMap))
	for i, m := range meta.ComponentMap {
		if m.Component >= len(planes) || m.PaletteCol >= pal.NumColumns {
			return planes
		}
		src := planes[m.Component]
		if m.MappingType != 1 {
			out[i] = src
			continue
		}
		p := src
		p.Depth = pal.BitDepths[m.PaletteCol]
		p.Signed = pal.Signed[m.PaletteCol]
		p.Samples = make([]int32, len(src.Samples))
		for j, v := range src.Samples {
			p.Samples[j] = pal.Lookup(v, m.PaletteCol)
		}
		out[i] = p
	}
	return out
}

// Pattern is the sample value the stub engine decodes for component c at
// plane position (x, y): a diagonal ramp offset per component, wrapped to
// the component's range.
func Pattern(c, x, y, depth int, signed bool) int32 {
	span := int64(1) << depth
	v := (int64(x) + int64(y) + 17*int64(c)) % span
	if signed {
		v -= span / 2
	}
	return int32(v)
}
