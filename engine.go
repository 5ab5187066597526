package jp2view

// Engine is the decoding engine: the wavelet, entropy and tiling machinery
// that turns a codestream into component planes. jp2view only orchestrates
// it; see the openjpeg package for the libopenjp2 binding and the
// enginetest package for an instrumented stub.
//
// Every value returned by an Engine or Codec that has a Destroy method is a
// native resource owned by exactly one Session, which destroys it exactly
// once.
type Engine interface {
	// DefaultParameters returns the engine's default decoder parameters.
	DefaultParameters() Parameters

	// Create allocates a codec handle for the given container format.
	Create(format Format) (Codec, error)
}

// Codec is a single engine handle. Its methods mirror the decoder lifecycle
// and report failure through their boolean results; the details of a
// failure arrive through the diagnostic handlers.
type Codec interface {
	SetDiagnosticHandlers(h Handlers)
	Configure(p Parameters) bool
	OpenStream(src *ByteSource) (Stream, bool)
	ReadHeader(s Stream) (ImageHandle, bool)
	Decode(img ImageHandle, s Stream) bool
	Destroy()
}

// Stream is the engine's view of a ByteSource.
type Stream interface {
	Destroy()
}

// ImageHandle is the engine's intermediate image descriptor.
type ImageHandle interface {
	// Export copies the decoded planes out of engine memory.
	Export() (*Image, error)
	Destroy()
}

// Handlers receive engine messages by severity. Nil handlers are ignored.
type Handlers struct {
	Info    func(msg string)
	Warning func(msg string)
	Error   func(msg string)
}

// Parameters are the decoder parameters passed to Configure.
type Parameters struct {
	// Reduce discards the given number of finest resolution levels.
	// The output dimensions are divided by 2^Reduce.
	Reduce int

	// MaxLayers limits the number of quality layers decoded.
	// 0 means all layers.
	MaxLayers int

	// Threads is the number of engine-internal worker threads.
	// 0 leaves the engine default.
	Threads int

	// IgnoreColorBoxes skips JP2 palette, component mapping and channel
	// definition boxes, leaving indexed data unexpanded.
	IgnoreColorBoxes bool
}

func (p Parameters) normalized() Parameters {
	p.Reduce = max(p.Reduce, 0)
	p.MaxLayers = max(p.MaxLayers, 0)
	p.Threads = max(p.Threads, 0)
	return p
}
