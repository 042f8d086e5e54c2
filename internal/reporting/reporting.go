package reporting

import "log/slog"

// Sink receives unexpected errors from background jobs for observability
// without halting the caller. Expected races (a row deleted between a job
// being scheduled and run) are logged by the job itself and never reach the
// sink.
type Sink interface {
	CaptureException(err error)
}

type logSink struct{}

// NewLogSink returns a Sink that records captured errors through slog. It is
// the default when no external error-reporting service is configured.
func NewLogSink() Sink {
	return logSink{}
}

func (logSink) CaptureException(err error) {
	slog.Error("captured exception", "error", err)
}
