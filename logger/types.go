package logger

// Logger is the leveled, structured logger handed to clocks, stores and the
// CLI. Arguments after msg are alternating keys and values, as with zap's
// SugaredLogger.
type Logger interface {
	DebugW(msg string, keysAndValues ...any)
	InfoW(msg string, keysAndValues ...any)
	WarnW(msg string, keysAndValues ...any)
	ErrorW(msg string, keysAndValues ...any)
	Sync() error
}
