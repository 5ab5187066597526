package jp2view

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Decode decodes a JPEG 2000 codestream or JP2 file held in data into an
// interleaved 8-bit bitmap. data is borrowed for the duration of the call
// and never modified.
//
// Every engine resource acquired during the call is released before Decode
// returns, on success and on failure. Failures are *Error values naming the
// failed phase and carrying the most recent diagnostics.
func Decode(engine Engine, data []byte, opts ...Option) (*Bitmap, error) {
	var defaults Parameters
	if engine != nil {
		defaults = engine.DefaultParameters()
	}
	o := buildOptionsFrom(defaults, opts)
	s := NewSession(engine, data, opts...)
	defer s.Release()

	if err := s.Configure(o.Parameters, o.Sink); err != nil {
		return nil, err
	}
	if err := s.ReadHeader(); err != nil {
		return nil, err
	}
	if err := s.Decode(); err != nil {
		return nil, err
	}
	img, err := s.Image()
	if err != nil {
		return nil, err
	}
	s.Release()

	bm, err := AssembleWithLimit(img, o.Workers, o.MaxBytes)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Diagnostics = s.tail()
		}
		return nil, err
	}
	return bm, nil
}

// DecodeConfig parses the main header of a codestream or JP2 file without
// decoding it.
func DecodeConfig(data []byte) (*Header, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, newError(KindHeader, PhaseReadHeader, err, nil)
	}
	return h, nil
}

// Result is the outcome of one input of DecodeAll.
type Result struct {
	Bitmap *Bitmap
	Err    error
}

// DecodeAll decodes every input in its own session, running at most jobs
// sessions at a time (jobs <= 0 means one per input). Per-input failures are
// reported in the results; the returned error is non-nil only when ctx is
// cancelled, in which case inputs not yet started are skipped.
func DecodeAll(ctx context.Context, engine Engine, inputs [][]byte, jobs int, opts ...Option) ([]Result, error) {
	results := make([]Result, len(inputs))
	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, data := range inputs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Bitmap, results[i].Err = Decode(engine, data, opts...)
			return nil
		})
	}
	_ = g.Wait()
	for i := range results {
		if results[i].Bitmap == nil && results[i].Err == nil {
			results[i].Err = ctx.Err()
		}
	}
	return results, ctx.Err()
}
