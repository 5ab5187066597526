package jp2view

import "github.com/sirupsen/logrus"

const defaultDiagnosticsLimit = 8

// Options controls a decode call. The zero value decodes at full
// resolution and quality with the engine's default parameters, detects the
// format from the data, and logs diagnostics to logrus' standard logger.
type Options struct {
	// Parameters are passed to the engine's Configure step.
	Parameters Parameters

	// Format overrides signature detection when non-zero.
	Format Format

	// Sink receives every diagnostic event in addition to the logger.
	Sink Sink

	// Logger receives diagnostics and lifecycle messages.
	// nil means logrus.StandardLogger().
	Logger logrus.FieldLogger

	// Workers bounds the goroutines used to assemble the bitmap.
	// 0 or 1 assembles on the calling goroutine.
	Workers int

	// MaxBytes bounds the memory allocated to assemble the bitmap. Larger
	// images fail with ErrImageTooLarge. 0 means DefaultMaxBytes.
	MaxBytes int64

	// DiagnosticsLimit is the number of recent events attached to a
	// failure. 0 means the default of 8.
	DiagnosticsLimit int
}

// Option configures Options.
type Option func(*Options)

// WithParameters sets the engine decoder parameters.
func WithParameters(p Parameters) Option {
	return func(o *Options) { o.Parameters = p }
}

// WithReduce decodes at 1/2^n of full resolution.
func WithReduce(n int) Option {
	return func(o *Options) { o.Parameters.Reduce = n }
}

// WithMaxLayers decodes at most n quality layers.
func WithMaxLayers(n int) Option {
	return func(o *Options) { o.Parameters.MaxLayers = n }
}

// WithThreads sets the number of engine-internal worker threads.
func WithThreads(n int) Option {
	return func(o *Options) { o.Parameters.Threads = n }
}

// WithFormat skips signature detection.
func WithFormat(f Format) Option {
	return func(o *Options) { o.Format = f }
}

// WithSink forwards diagnostics to s.
func WithSink(s Sink) Option {
	return func(o *Options) { o.Sink = s }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithWorkers assembles the bitmap on up to n goroutines.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithMaxBytes bounds the memory allocated to assemble the bitmap.
func WithMaxBytes(n int64) Option {
	return func(o *Options) { o.MaxBytes = n }
}

// WithDiagnosticsLimit sets how many recent events a failure carries.
func WithDiagnosticsLimit(n int) Option {
	return func(o *Options) { o.DiagnosticsLimit = n }
}

func buildOptions(opts []Option) Options {
	return buildOptionsFrom(Parameters{}, opts)
}

// buildOptionsFrom applies opts over the given base parameters.
func buildOptionsFrom(base Parameters, opts []Option) Options {
	o := Options{Parameters: base}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.DiagnosticsLimit <= 0 {
		o.DiagnosticsLimit = defaultDiagnosticsLimit
	}
	o.Parameters = o.Parameters.normalized()
	return o
}
