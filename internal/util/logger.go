package util

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger = zap.NewNop()
	loggerMu      sync.RWMutex
)

// ParseLevel parses a string log level.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a logger writing human readable lines to stdout and,
// when filePath is set, JSON lines to a size-rotated log file.
func NewLogger(level string, filePath string) (*zap.Logger, error) {
	lvl := ParseLevel(level)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), lvl),
	}

	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err != nil {
			return nil, err
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "ts"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), w, lvl))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// InitLogger initializes the default logger with config. If the log file
// cannot be opened the logger falls back to stdout only.
func InitLogger(level string, filePath string) *zap.Logger {
	l, err := NewLogger(level, filePath)
	if err != nil {
		l, _ = NewLogger(level, "")
		l.Warn("log_file_unavailable", zap.String("path", filePath), zap.Error(err))
	}

	loggerMu.Lock()
	defaultLogger = l
	loggerMu.Unlock()

	return l
}

// Logger returns the process-wide logger set by InitLogger.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}
