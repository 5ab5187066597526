package jp2view

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *collectSink) Emit(sev Severity, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sev.String()+": "+msg)
}

func TestRecorderElapsedFromCreation(t *testing.T) {
	tests := []struct {
		name    string
		offsets []time.Duration
	}{
		{"immediate", []time.Duration{0}},
		{"spread", []time.Duration{5 * time.Millisecond, 12 * time.Millisecond, time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(nil, nil, 0)
			created := r.start
			var now time.Time
			r.now = func() time.Time { return now }
			for i, off := range tt.offsets {
				now = created.Add(off)
				r.Emit(SeverityInfo, fmt.Sprintf("event %d", i))
			}
			events := r.Events()
			require.Len(t, events, len(tt.offsets))
			for i, ev := range events {
				assert.Equal(t, tt.offsets[i], ev.Elapsed)
			}
		})
	}
}

func TestRecorderOrderAndPhase(t *testing.T) {
	next := &collectSink{}
	r := NewRecorder(next, nil, 0)
	clock := r.start
	r.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	r.setPhase(PhaseConfigure)
	r.Emit(SeverityInfo, "setting up")
	r.setPhase(PhaseDecode)
	r.Emit(SeverityWarning, "unknown marker")
	r.Emit(SeverityError, "tile truncated")

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, Event{Seq: 1, Severity: SeverityInfo, Phase: PhaseConfigure, Message: "setting up", Elapsed: time.Millisecond}, events[0])
	assert.Equal(t, PhaseDecode, events[1].Phase)
	assert.Equal(t, 3, events[2].Seq)
	assert.Equal(t, 3*time.Millisecond, events[2].Elapsed)

	assert.Equal(t, []string{"info: setting up", "warning: unknown marker", "error: tile truncated"}, next.msgs)
	assert.Equal(t, 1, r.Count(SeverityError))
	assert.Equal(t, 1, r.Count(SeverityWarning))
	assert.Equal(t, "[error] decode: tile truncated", events[2].String())
}

func TestRecorderLimitAndTail(t *testing.T) {
	r := NewRecorder(nil, nil, 3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		r.Emit(SeverityInfo, m)
	}
	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].Message)
	assert.Equal(t, 5, events[2].Seq)

	tail := r.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "d", tail[0].Message)
	assert.Equal(t, "e", tail[1].Message)

	assert.Len(t, r.Tail(10), 3)
	assert.Nil(t, r.Tail(0))
	assert.Nil(t, NewRecorder(nil, nil, 0).Tail(4))
}

func TestRecorderLogsBySeverity(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	r := NewRecorder(nil, log, 0)
	r.setPhase(PhaseReadHeader)

	r.Emit(SeverityInfo, "info")
	r.Emit(SeverityWarning, "warn")
	r.Emit(SeverityError, "err")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
	assert.Equal(t, "read-header", entries[2].Data["phase"])
	assert.Equal(t, 3, entries[2].Data["seq"])
}

func TestRecorderConcurrentEmit(t *testing.T) {
	r := NewRecorder(nil, nil, 0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Emit(SeverityInfo, "x")
			}
		}()
	}
	wg.Wait()
	events := r.Events()
	require.Len(t, events, 800)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestHandlersRouteBySeverity(t *testing.T) {
	r := NewRecorder(nil, nil, 0)
	h := r.handlers()
	h.Error("e")
	h.Info("i")
	h.Warning("w")
	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, SeverityError, events[0].Severity)
	assert.Equal(t, SeverityInfo, events[1].Severity)
	assert.Equal(t, SeverityWarning, events[2].Severity)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	sink := NewLogSink(log)
	sink.Emit(SeverityWarning, "using default value")
	assert.Contains(t, buf.String(), "level=warning")
	assert.Contains(t, buf.String(), `msg="using default value"`)
	assert.Contains(t, buf.String(), "severity=warning")
}

func TestErrorKinds(t *testing.T) {
	cause := ErrTruncatedData
	err := newError(KindHeader, PhaseReadHeader, cause, []Event{{Severity: SeverityError, Phase: PhaseReadHeader, Message: "bad SIZ"}})

	assert.ErrorIs(t, err, ErrHeader)
	assert.ErrorIs(t, err, ErrTruncatedData)
	assert.NotErrorIs(t, err, ErrDecode)
	assert.Equal(t, KindHeader, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(cause))
	assert.Equal(t,
		"jp2view: HeaderError during read-header: jp2view: truncated data (last diagnostic: [error] read-header: bad SIZ)",
		err.Error())

	for k := KindConfiguration; k <= KindInvalidState; k++ {
		assert.ErrorIs(t, newError(k, PhaseCreate, nil, nil), k.sentinel(), k.String())
	}
}
