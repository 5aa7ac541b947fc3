package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/observable"
)

// Diagnostic categories passed to Reporter.
const (
	CategoryParse       = "parse"
	CategoryStage       = "stage"
	CategoryDeserialize = "deserialize"
	CategoryApply       = "apply"
	CategorySerialize   = "serialize"
	CategoryEncode      = "encode"
	CategoryPanic       = "panic"
	CategoryJournal     = "journal"
)

// Call names passed to Recorder.
const (
	CallSendToRenderer = "send_to_renderer"
	CallGetState       = "get_state"
)

// Reporter is the diagnostics sink for errors the bridge swallows.
type Reporter interface {
	Report(category string, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(category string, err error)

func (f ReporterFunc) Report(category string, err error) { f(category, err) }

// Recorder receives every boundary call. journal.Writer implements it.
type Recorder interface {
	Record(call string, request, response []byte) error
}

// Options configures a Bridge.
type Options struct {
	// Subscriptions selects the derived events to record.
	// nil subscribes to every event.
	Subscriptions observable.Subscriptions

	// Reporter receives swallowed errors. nil reports to the package logger.
	Reporter Reporter

	// Recorder, when set, records every boundary call.
	Recorder Recorder

	// Locker is the world's single-writer lock. When nil the world itself is
	// used if it implements sync.Locker.
	Locker sync.Locker

	// MaxBatchBytes rejects larger incoming batches. 0 means no limit.
	MaxBatchBytes int

	// ObserveWorld subscribes the outgoing collector to the world's host
	// writes when the world supports observers.
	ObserveWorld bool
}

// DefaultOptions returns the options used by most hosts.
func DefaultOptions() Options {
	return Options{
		MaxBatchBytes: 16 << 20,
		ObserveWorld:  true,
	}
}

type logReporter struct {
	log *zap.Logger
}

// NewLogReporter reports to l with structured fields.
func NewLogReporter(l *zap.Logger) Reporter {
	return &logReporter{log: l}
}

func (r *logReporter) Report(category string, err error) {
	fields := []zap.Field{zap.String("category", category), zap.Error(err)}
	var e *errors.Error
	if errors.As(err, &e) {
		fields = append(fields,
			zap.String("phase", string(e.Phase)),
			zap.String("kind", string(e.Kind)))
		if e.Key != nil {
			fields = append(fields,
				zap.Stringer("entity", e.Key.Entity),
				zap.Uint32("component", uint32(e.Key.Component)))
		}
	}
	r.log.Warn("bridge error", fields...)
}
