package tcpkit

import "go.uber.org/zap"

// Logger is the logging sink used by Server and Client for diagnostic events that aren't surfaced through a
// dedicated handler (OnError, OnAcceptError, ...). It defaults to a no-op logger, mirroring the teacher's
// nil-checked optional handler fields: logging is ambient and never required to observe correct behavior.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...any) { l.sugared.Debugw(msg, keysAndValues...) }
func (l *zapLogger) Infow(msg string, keysAndValues ...any)  { l.sugared.Infow(msg, keysAndValues...) }
func (l *zapLogger) Warnw(msg string, keysAndValues ...any)  { l.sugared.Warnw(msg, keysAndValues...) }
func (l *zapLogger) Errorw(msg string, keysAndValues ...any) { l.sugared.Errorw(msg, keysAndValues...) }

// NewProductionLogger wraps a zap production logger (JSON encoding, info level) as a Logger.
func NewProductionLogger() Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	return &zapLogger{sugared: logger.Sugar()}
}

type noopLogger struct{}

func (noopLogger) Debugw(string, ...any) {}
func (noopLogger) Infow(string, ...any)  {}
func (noopLogger) Warnw(string, ...any)  {}
func (noopLogger) Errorw(string, ...any) {}

var discardLogger Logger = noopLogger{}
