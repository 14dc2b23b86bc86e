package synchronizer

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// synchronizerLogger wraps a logiface.Logger[*stumpy.Event], matching
// go-eventloop/logging.go's package-level structured-logging seam but built
// on the monorepo's real logging library instead of hand-rolling a
// Logger/LogEntry interface (see DESIGN.md for why the teacher's bespoke
// logger was dropped in favor of logiface+stumpy).
type synchronizerLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// newNopLogger returns a logger that discards everything, the default a
// Synchronizer is constructed with so the package stays silent until a host
// process opts in, matching go-eventloop's default-no-op-logger stance.
func newNopLogger() *synchronizerLogger {
	return &synchronizerLogger{l: stumpy.L.New(stumpy.L.WithStumpy(), logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled))}
}

// NewLogger builds a synchronizerLogger writing newline-delimited JSON
// events to w, suitable for passing to WithLogger.
func NewLogger(w io.Writer) *synchronizerLogger {
	return &synchronizerLogger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(),
			stumpy.L.WithWriter(w),
			logiface.WithLevel[*stumpy.Event](logiface.LevelInformational),
		),
	}
}

func (sl *synchronizerLogger) lifecycle(name, event string) {
	if sl == nil || sl.l == nil {
		return
	}
	sl.l.Info().Str("synchronizer", name).Str("event", event).Log("lifecycle transition")
}

func (sl *synchronizerLogger) warn(name, event string) {
	if sl == nil || sl.l == nil {
		return
	}
	sl.l.Warning().Str("synchronizer", name).Str("event", event).Log("dispatch warning")
}

func (sl *synchronizerLogger) err(name, event string, err error) {
	if sl == nil || sl.l == nil {
		return
	}
	sl.l.Err().Str("synchronizer", name).Str("event", event).Err(err).Log("dispatch error")
}
