// Package logging builds the zap loggers used by the slotchan binaries.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log level and an optional rotated log file. Console
// output always goes to stderr, which is where the diagnostics belong.
type Options struct {
	Level string
	File  string
	JSON  bool
}

// New builds a logger from opts and redirects the stdlib log package to it.
// The caller should defer logger.Sync().
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)}
	if strings.TrimSpace(opts.File) != "" {
		ws := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

// ParseLevel maps a level name to a zap level; the empty string means info.
func ParseLevel(s string) (zap.AtomicLevel, error) {
	if strings.TrimSpace(s) == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	return zap.ParseAtomicLevel(strings.ToLower(s))
}
