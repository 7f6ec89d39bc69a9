package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "subcheck.log"

// NewLogger writes JSON lines to a rolling file under logDir. Unknown
// levels fall back to info.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	core, err := fileCore(logDir, parseLevel(level))
	if err != nil {
		return nil, err
	}
	return zap.New(core), nil
}

// NewCLILogger is NewLogger plus warnings and errors on stderr.
func NewCLILogger(logDir, level string) (*zap.Logger, error) {
	file, err := fileCore(logDir, parseLevel(level))
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zap.WarnLevel)
	return zap.New(zapcore.NewTee(file, console)), nil
}

func fileCore(logDir string, lvl zapcore.Level) (zapcore.Core, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl), nil
}

func parseLevel(s string) zapcore.Level {
	if s == "" {
		return zap.InfoLevel
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}
