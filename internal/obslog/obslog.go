package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process-wide logger; a no-op until Init runs so packages can log unconditionally.
var (
	globalLogger *zap.Logger = zap.NewNop()
)

// Options selects sinks and encoding for the global logger.
type Options struct {
	Level   string
	Console bool
	ToFile  bool
	File    string
	Format  string // legacy | json | console
	Caller  bool
}

// L returns the global logger.
func L() *zap.Logger { return globalLogger }

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.Logger { return globalLogger.Named(component) }

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	prev := globalLogger
	if l == nil {
		l = zap.NewNop()
	}
	globalLogger = l
	return func() { globalLogger = prev }
}

// Init builds the global zap logger from opts. Console and file cores are teed; with neither
// enabled a development console logger is used.
func Init(opts Options) error {
	level := parseLevel(opts.Level)
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	encCfg, ok := encoderConfigs[format]
	if !ok {
		format = "legacy"
		encCfg = encoderConfigs[format]
	}

	var sinks []zapcore.WriteSyncer
	if opts.Console {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	if opts.ToFile {
		f, err := openLogFile(opts.File)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
	}

	var core zapcore.Core
	if len(sinks) == 0 {
		dev := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		core = zapcore.NewCore(dev, zapcore.Lock(os.Stdout), level)
	} else {
		cores := make([]zapcore.Core, 0, len(sinks))
		for _, ws := range sinks {
			cores = append(cores, zapcore.NewCore(newEncoder(format, encCfg()), ws, level))
		}
		core = zapcore.NewTee(cores...)
	}

	zopts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Caller || format == "legacy" {
		zopts = append(zopts, zap.AddCaller())
	}
	globalLogger = zap.New(core, zopts...)
	return nil
}

// Sync flushes buffered entries. Errors from syncing a terminal are expected and dropped.
func Sync() {
	_ = globalLogger.Sync()
}

func openLogFile(path string) (zapcore.WriteSyncer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("logs", "turnledger.log")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

func newEncoder(format string, cfg zapcore.EncoderConfig) zapcore.Encoder {
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func parseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

// encoderConfigs by LOG_FORMAT. legacy is the pipe-separated layout used in the log files.
var encoderConfigs = map[string]func() zapcore.EncoderConfig{
	"legacy": func() zapcore.EncoderConfig {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		return cfg
	},
	"console": func() zapcore.EncoderConfig {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return cfg
	},
	"json": func() zapcore.EncoderConfig {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return cfg
	},
}
