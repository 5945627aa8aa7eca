package matching

import "github.com/rs/zerolog"

// DiagnosticSink receives compilation failures. Lazy compilation happens during scanning, so implementations must be safe for concurrent use and must not block for long.
type DiagnosticSink interface {
	CompilationFailed(err *CompilationError)
}

// DiagnosticSinkFunc adapts a function to the DiagnosticSink interface.
type DiagnosticSinkFunc func(err *CompilationError)

// CompilationFailed calls f(err).
func (f DiagnosticSinkFunc) CompilationFailed(err *CompilationError) {
	f(err)
}

// NewLoggerDiagnosticSink creates a DiagnosticSink that logs each failure at warn level. It is the Matcher's default sink.
func NewLoggerDiagnosticSink(logger zerolog.Logger) DiagnosticSink {
	return &loggerSink{logger: logger}
}

type loggerSink struct {
	logger zerolog.Logger
}

func (s *loggerSink) CompilationFailed(err *CompilationError) {
	ev := s.logger.Warn().Err(err.Err).Str("pattern", err.Pattern)
	if err.CommonString {
		ev = ev.Int("commonStringID", int(err.CommonStringID))
	} else {
		ev = ev.Int("signatureID", int(err.SignatureID))
	}
	ev.Msg("Pattern compilation failed")
}
