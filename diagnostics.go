package jp2view

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Severity of a diagnostic event. Severity is advisory: an Error event
// does not by itself fail a decode.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Phase names a step of the decode pipeline.
type Phase int

const (
	PhaseCreate Phase = iota
	PhaseConfigure
	PhaseReadHeader
	PhaseDecode
	PhaseAssemble
	PhaseRelease
)

func (p Phase) String() string {
	switch p {
	case PhaseCreate:
		return "create"
	case PhaseConfigure:
		return "configure"
	case PhaseReadHeader:
		return "read-header"
	case PhaseDecode:
		return "decode"
	case PhaseAssemble:
		return "assemble"
	case PhaseRelease:
		return "release"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Sink receives diagnostic events emitted by the decoding engine.
// Emit must not block for long; it is called synchronously from the
// decode call.
type Sink interface {
	Emit(sev Severity, msg string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(sev Severity, msg string)

func (f SinkFunc) Emit(sev Severity, msg string) { f(sev, msg) }

// Event is one recorded diagnostic.
type Event struct {
	Seq      int
	Severity Severity
	Phase    Phase
	Message  string
	Elapsed  time.Duration // since the Recorder was created (a Session's Configure call)
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Phase, e.Message)
}

// Recorder is the per-session Sink. It stamps every event with the current
// phase, a sequence number and the time since NewRecorder, keeps
// the events in emission order, logs them, and forwards them to an optional
// caller sink.
type Recorder struct {
	mu     sync.Mutex
	start  time.Time
	now    func() time.Time
	phase  Phase
	events []Event
	limit  int
	seq    int
	next   Sink
	log    logrus.FieldLogger
}

// NewRecorder returns a Recorder that forwards to next (may be nil) and logs
// to log (may be nil). At most limit events are retained (0 means no limit);
// older events are dropped first.
func NewRecorder(next Sink, log logrus.FieldLogger, limit int) *Recorder {
	return &Recorder{
		start: time.Now(),
		now:   time.Now,
		limit: limit,
		next:  next,
		log:   log,
	}
}

func (r *Recorder) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// Emit records an event.
func (r *Recorder) Emit(sev Severity, msg string) {
	r.mu.Lock()
	r.seq++
	ev := Event{
		Seq:      r.seq,
		Severity: sev,
		Phase:    r.phase,
		Message:  msg,
		Elapsed:  r.now().Sub(r.start),
	}
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	next, log := r.next, r.log
	r.mu.Unlock()

	if log != nil {
		logEvent(log, ev)
	}
	if next != nil {
		next.Emit(sev, msg)
	}
}

// Events returns a copy of the retained events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tail returns up to n of the most recent events.
func (r *Recorder) Tail(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || len(r.events) == 0 {
		return nil
	}
	return append([]Event(nil), lo.Subset(r.events, -n, uint(n))...)
}

// Count returns how many retained events have the given severity.
func (r *Recorder) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.CountBy(r.events, func(e Event) bool { return e.Severity == sev })
}

func (r *Recorder) handlers() Handlers {
	return Handlers{
		Info:    func(msg string) { r.Emit(SeverityInfo, msg) },
		Warning: func(msg string) { r.Emit(SeverityWarning, msg) },
		Error:   func(msg string) { r.Emit(SeverityError, msg) },
	}
}

func logEvent(log logrus.FieldLogger, ev Event) {
	entry := log.WithFields(logrus.Fields{
		"phase":   ev.Phase.String(),
		"seq":     ev.Seq,
		"elapsed": ev.Elapsed,
	})
	switch ev.Severity {
	case SeverityInfo:
		entry.Debug(ev.Message)
	case SeverityWarning:
		entry.Warn(ev.Message)
	default:
		entry.Error(ev.Message)
	}
}

// NewLogSink returns a Sink that writes every event to log at the level
// matching its severity.
func NewLogSink(log logrus.FieldLogger) Sink {
	return SinkFunc(func(sev Severity, msg string) {
		entry := log.WithField("severity", sev.String())
		switch sev {
		case SeverityInfo:
			entry.Info(msg)
		case SeverityWarning:
			entry.Warn(msg)
		default:
			entry.Error(msg)
		}
	})
}
