package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
}

// level parses Level, falling back to info for empty or unknown names.
func (c Config) level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// zapConfig translates c into a zap configuration. Durations are written as
// strings such as "25ms" since clock log entries are mostly tick intervals.
func (c Config) zapConfig() zap.Config {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.level())
	zc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if c.Encoding == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	return zc
}
