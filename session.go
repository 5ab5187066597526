package jp2view

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// State is a Session lifecycle state.
type State int

const (
	StateCreated State = iota
	StateConfigured
	StateHeaderRead
	StateDecoded
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateHeaderRead:
		return "header-read"
	case StateDecoded:
		return "decoded"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives one decode through the engine lifecycle:
//
//	Created -> Configure -> Configured -> ReadHeader -> HeaderRead
//	        -> Decode -> Decoded -> Release -> Released
//
// A Session exclusively owns the codec handle, the stream and the image
// handle it acquires. Any failed step releases everything acquired so far
// and moves the session to Released; Release does the same on success.
// Operations other than Release are invalid once Released.
//
// A Session is not safe for concurrent use. Independent sessions share no
// mutable state and may run concurrently, even over the same input buffer.
type Session struct {
	engine Engine
	source *ByteSource
	format Format
	// formatErr holds a signature detection failure, reported by ReadHeader.
	formatErr error
	rec       *Recorder
	log       logrus.FieldLogger
	limit     int

	state  State
	codec  Codec
	stream Stream
	handle ImageHandle
	image  *Image
}

// NewSession returns a session in the Created state over data. data is
// borrowed for the lifetime of the session and never modified. Only the
// Format, Logger and DiagnosticsLimit options apply to a bare session.
func NewSession(engine Engine, data []byte, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{
		engine: engine,
		source: NewByteSource(data),
		format: o.Format,
		log:    o.Logger,
		limit:  o.DiagnosticsLimit,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Diagnostics returns the events recorded so far, or nil before Configure.
func (s *Session) Diagnostics() []Event {
	if s.rec == nil {
		return nil
	}
	return s.rec.Events()
}

// Configure applies decoder parameters and attaches sink (which may be nil)
// to the engine's diagnostic handlers.
func (s *Session) Configure(p Parameters, sink Sink) error {
	if err := s.expect(StateCreated, PhaseConfigure); err != nil {
		return err
	}
	s.rec = NewRecorder(sink, s.log, 0)
	s.rec.setPhase(PhaseConfigure)
	return s.run(PhaseConfigure, func() error {
		if s.engine == nil {
			return newError(KindConfiguration, PhaseConfigure, ErrEngineUnavailable, nil)
		}
		format, err := s.resolveFormat()
		if err != nil {
			s.format = FormatUnknown
			s.formatErr = err
		} else {
			s.format = format
		}

		codec, err := s.engine.Create(s.createFormat())
		if err != nil {
			return s.fail(KindConfiguration, PhaseConfigure, err)
		}
		s.codec = codec
		s.codec.SetDiagnosticHandlers(s.rec.handlers())

		if !s.codec.Configure(p.normalized()) {
			return s.fail(KindConfiguration, PhaseConfigure, ErrConfiguration)
		}
		s.transition(StateConfigured)
		return nil
	})
}

// ReadHeader opens the engine stream over the input and reads the main
// header.
func (s *Session) ReadHeader() error {
	if err := s.expect(StateConfigured, PhaseReadHeader); err != nil {
		return err
	}
	s.rec.setPhase(PhaseReadHeader)
	return s.run(PhaseReadHeader, func() error {
		if s.formatErr != nil {
			return s.fail(KindHeader, PhaseReadHeader, s.formatErr)
		}
		stream, ok := s.codec.OpenStream(s.source)
		if !ok || stream == nil {
			return s.fail(KindHeader, PhaseReadHeader, fmt.Errorf("%w: cannot open stream", ErrHeader))
		}
		s.stream = stream

		handle, ok := s.codec.ReadHeader(s.stream)
		if handle != nil {
			s.handle = handle
		}
		if !ok || handle == nil {
			return s.fail(KindHeader, PhaseReadHeader, ErrHeader)
		}
		s.transition(StateHeaderRead)
		return nil
	})
}

// Decode decodes the codestream body and copies the planes out of the
// engine.
func (s *Session) Decode() error {
	if err := s.expect(StateHeaderRead, PhaseDecode); err != nil {
		return err
	}
	s.rec.setPhase(PhaseDecode)
	return s.run(PhaseDecode, func() error {
		if !s.codec.Decode(s.handle, s.stream) {
			return s.fail(KindDecode, PhaseDecode, ErrDecode)
		}
		img, err := s.handle.Export()
		if err != nil {
			return s.fail(KindDecode, PhaseDecode, err)
		}
		if img == nil {
			return s.fail(KindDecode, PhaseDecode, fmt.Errorf("%w: engine returned no image", ErrDecode))
		}
		s.image = img
		s.transition(StateDecoded)
		return nil
	})
}

// Image returns the decoded intermediate image. It is only available in
// the Decoded state, but the returned image holds no engine memory and
// stays valid after Release.
func (s *Session) Image() (*Image, error) {
	if s.state != StateDecoded {
		return nil, s.invalid(PhaseAssemble, StateDecoded)
	}
	return s.image, nil
}

// Release destroys every resource the session holds and moves it to
// Released. It is idempotent.
func (s *Session) Release() {
	if s.state == StateReleased {
		return
	}
	if s.rec != nil {
		s.rec.setPhase(PhaseRelease)
	}
	s.abandon()
}

// abandon is the single release point: image handle, then stream, then
// codec, each exactly once.
func (s *Session) abandon() {
	from := s.state
	if s.handle != nil {
		s.handle.Destroy()
		s.handle = nil
	}
	if s.stream != nil {
		s.stream.Destroy()
		s.stream = nil
	}
	if s.codec != nil {
		s.codec.Destroy()
		s.codec = nil
	}
	s.state = StateReleased
	s.log.WithFields(logrus.Fields{"from": from.String()}).Debug("jp2view: session released")
}

// run executes one phase, converting an engine panic into a DecodeError and
// guaranteeing that a failed phase leaves the session Released.
func (s *Session) run(phase Phase, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindDecode, phase, fmt.Errorf("%w: engine panic: %v", ErrDecode, r), s.tail())
		}
		if err != nil && s.state != StateReleased {
			s.abandon()
		}
	}()
	return fn()
}

func (s *Session) fail(kind Kind, phase Phase, cause error) error {
	return newError(kind, phase, cause, s.tail())
}

func (s *Session) tail() []Event {
	if s.rec == nil {
		return nil
	}
	return s.rec.Tail(s.limit)
}

func (s *Session) expect(want State, phase Phase) error {
	if s.state != want {
		return s.invalid(phase, want)
	}
	return nil
}

func (s *Session) invalid(phase Phase, want State) error {
	return newError(KindInvalidState, phase,
		fmt.Errorf("%w: %s requires state %s, session is %s", ErrInvalidState, phase, want, s.state), nil)
}

func (s *Session) transition(to State) {
	s.log.WithFields(logrus.Fields{"from": s.state.String(), "to": to.String()}).Debug("jp2view: session transition")
	s.state = to
}

func (s *Session) resolveFormat() (Format, error) {
	if s.format != FormatUnknown {
		return s.format, nil
	}
	return DetectFormat(s.source.Bytes())
}

// createFormat is the format the codec is created for. An undetectable
// input still gets a codestream decoder so the failure surfaces in the
// header phase.
func (s *Session) createFormat() Format {
	if s.format == FormatUnknown {
		return FormatJ2K
	}
	return s.format
}
