package logger

import (
	"go.uber.org/zap"
)

var _ Logger = (*DefaultLogger)(nil)

// DefaultLogger is a Logger backed by a zap SugaredLogger.
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger from cfg. Unknown levels log at info; Encoding is
// "json" (the default) or "console".
func New(cfg Config) (*DefaultLogger, error) {
	zl, err := cfg.zapConfig().Build()
	if err != nil {
		return nil, err
	}
	return FromZap(zl), nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *DefaultLogger {
	return &DefaultLogger{sugar: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *DefaultLogger {
	return FromZap(zap.NewNop())
}

// Named returns a child logger whose entries carry name as a segment of the
// logger name, e.g. "store" or "clock".
func (l *DefaultLogger) Named(name string) *DefaultLogger {
	return &DefaultLogger{sugar: l.sugar.Named(name)}
}

// With returns a child logger that adds the given key/value pairs to every
// entry.
func (l *DefaultLogger) With(keysAndValues ...any) *DefaultLogger {
	return &DefaultLogger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *DefaultLogger) DebugW(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *DefaultLogger) InfoW(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *DefaultLogger) WarnW(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *DefaultLogger) ErrorW(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }

func (l *DefaultLogger) Sync() error {
	return l.sugar.Sync()
}
