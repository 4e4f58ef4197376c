// internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/scalpel-editor/internal/config"
)

var (
	global atomic.Pointer[zap.Logger]
	once   sync.Once

	// rotator is the file sink, kept so Close can release it.
	rotator atomic.Pointer[lumberjack.Logger]
)

const ansiReset = "\x1b[0m"

var ansi = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the process logger once; later calls are ignored. The
// console sink gets the configured format, the optional file sink is always
// JSON and rotated.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(encoderFor(cfg), console, level)}
		if cfg.LogFile != "" {
			lj := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			rotator.Store(lj)
			cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(lj), level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(cores...), opts...)
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}
		global.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeLogger writes the console sink to stderr, which keeps stdout
// free for command output such as rendered documents.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest forgets the process logger. Tests only.
func ResetForTest() {
	global.Store(nil)
	rotator.Store(nil)
	once = sync.Once{}
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	return ec
}

func jsonEncoder() zapcore.Encoder {
	ec := baseEncoderConfig()
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

func encoderFor(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format != "console" {
		return jsonEncoder()
	}
	ec := baseEncoderConfig()
	ec.EncodeLevel = colorLevels(cfg.Colors)
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// colorLevels paints the level name with the configured color, if any.
func colorLevels(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	}
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := l.CapitalString()
		if code, ok := ansi[byLevel[l]]; ok {
			enc.AppendString(code + name + ansiReset)
			return
		}
		enc.AppendString(name)
	}
}

// GetLogger returns the process logger, or a development logger named
// "fallback" before Initialize.
func GetLogger() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes buffered entries. Errors from syncing a terminal are noise
// and are not reported.
func Sync() {
	l := global.Load()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !ignorableSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func ignorableSyncError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"sync /dev/stdout", "sync /dev/stderr", "invalid argument", "operation not supported", "inappropriate ioctl"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Close flushes and releases the rotated log file.
func Close() error {
	Sync()
	if lj := rotator.Load(); lj != nil {
		return lj.Close()
	}
	return nil
}
