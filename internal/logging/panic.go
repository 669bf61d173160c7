package logging

import (
	"fmt"
	"runtime"
	"strings"
)

// CapturePanic must be deferred directly. If the surrounding function is
// panicking, it records the panic with its origin, flushes the log, and
// re-raises the original value.
//
//	defer sink.CapturePanic()
func (s *Sink) CapturePanic() {
	rec := recover()
	if rec == nil {
		return
	}
	s.ReportPanic(rec)
	panic(rec)
}

// ReportPanic records a recovered panic value and flushes the log. It must
// be called from a deferred function while the panic is unwinding so the
// panicking frame can still be located.
func (s *Sink) ReportPanic(rec any) {
	l := s.Logger(ComponentBridge)
	l.Error().Msgf("PANIC: A panic occurred in backend at %s: %s", panicLocation(), panicMessage(rec))
	_ = s.Flush()
}

func panicMessage(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return "Unknown panic"
	}
}

// panicLocation returns file:line of the frame that raised the current
// panic: the first non-runtime frame after runtime.gopanic.
func panicLocation() string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	sawPanic := false
	for {
		f, more := frames.Next()
		if !sawPanic {
			sawPanic = f.Function == "runtime.gopanic"
		} else if !strings.HasPrefix(f.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
