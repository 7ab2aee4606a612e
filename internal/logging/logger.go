// Package logging builds the zap loggers used across the application.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Factory provides centralized logger creation. Module loggers are named
// children of the root logger, optionally with their own level.
type Factory struct {
	config Config
	root   *zap.Logger
	closer io.Closer

	loggers   map[string]*zap.Logger
	loggersMu sync.RWMutex
}

// NewFactory creates a logger factory from cfg.
func NewFactory(cfg Config) (*Factory, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := buildWriter(cfg)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		config:  cfg,
		closer:  closer,
		loggers: make(map[string]*zap.Logger),
	}
	f.root = zap.New(f.buildCore(writer, level), buildOptions(cfg)...)
	return f, nil
}

// NewLogger is a shortcut for building only the root logger.
func NewLogger(cfg Config) (*zap.Logger, error) {
	f, err := NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	return f.Root(), nil
}

// Root returns the root logger.
func (f *Factory) Root() *zap.Logger {
	return f.root
}

// Logger returns the logger for the specified module. Levels in
// Config.ModuleLevels apply to it and to any logger named after it.
func (f *Factory) Logger(module string) *zap.Logger {
	f.loggersMu.RLock()
	if logger, ok := f.loggers[module]; ok {
		f.loggersMu.RUnlock()
		return logger
	}
	f.loggersMu.RUnlock()

	f.loggersMu.Lock()
	defer f.loggersMu.Unlock()

	if logger, ok := f.loggers[module]; ok {
		return logger
	}
	logger := f.root.Named(module)
	f.loggers[module] = logger
	return logger
}

// Sync flushes the root logger and closes any rotating file.
func (f *Factory) Sync() error {
	err := f.root.Sync()
	if f.closer != nil {
		if cerr := f.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func buildWriter(cfg Config) (zapcore.WriteSyncer, io.Closer, error) {
	switch cfg.OutputPath {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.OutputPath,
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
		LocalTime:  cfg.Rotation.LocalTime,
	}
	return zapcore.AddSync(fileWriter), fileWriter, nil
}

func (f *Factory) buildCore(writer zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	encoderConfig := f.config.buildEncoderConfig()

	var encoder zapcore.Encoder
	if f.config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	modules := make(map[string]zapcore.Level, len(f.config.ModuleLevels))
	for name, s := range f.config.ModuleLevels {
		if l, err := zapcore.ParseLevel(s); err == nil {
			modules[name] = l
		}
	}

	// The inner core admits everything a module override may ask for; the
	// effective level is enforced per logger name by levelCore.
	core := zapcore.NewCore(encoder, writer, minLevel(level, modules))
	if f.config.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(
			core,
			time.Second,
			f.config.Sampling.Initial,
			f.config.Sampling.Thereafter,
		)
	}
	return &levelCore{Core: core, root: level, modules: modules}
}

func buildOptions(cfg Config) []zap.Option {
	var options []zap.Option
	if cfg.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if cfg.Development {
		options = append(options, zap.Development())
	}
	return options
}

func minLevel(root zapcore.Level, modules map[string]zapcore.Level) zapcore.Level {
	lowest := root
	for _, l := range modules {
		if l < lowest {
			lowest = l
		}
	}
	return lowest
}

// levelCore filters entries by the level configured for their logger name.
// A name without its own level inherits from its closest named parent,
// then from the root.
type levelCore struct {
	zapcore.Core
	root    zapcore.Level
	modules map[string]zapcore.Level
}

func (c *levelCore) levelFor(name string) zapcore.Level {
	for name != "" {
		if l, ok := c.modules[name]; ok {
			return l
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return c.root
}

func (c *levelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level < c.levelFor(ent.LoggerName) {
		return ce
	}
	return c.Core.Check(ent, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), root: c.root, modules: c.modules}
}
