package logging

import (
	"go.uber.org/zap/zapcore"
)

// Config defines all settings for logging.
type Config struct {
	// Level is the minimum log level that will be captured.
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format. Can be "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`

	// OutputPath is "stdout", "stderr", or a file path. Files are rotated.
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	// Rotation defines the configuration for log file rotation.
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`

	// ModuleLevels allows setting specific log levels for named loggers,
	// e.g. "detection: debug".
	ModuleLevels map[string]string `mapstructure:"module_levels" yaml:"module_levels,omitempty"`

	EnableCaller     bool `mapstructure:"enable_caller" yaml:"enable_caller"`
	EnableStacktrace bool `mapstructure:"enable_stacktrace" yaml:"enable_stacktrace"`

	// Development enables colored console output.
	Development bool `mapstructure:"development" yaml:"development"`

	// Sampling configures log sampling to reduce log volume.
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
}

// RotationConfig defines the settings for log file rotation.
type RotationConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int `mapstructure:"max_size_mb" yaml:"max_size_mb"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `mapstructure:"max_age_days" yaml:"max_age_days"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`

	// Compress determines if the rotated log files should be compressed.
	Compress bool `mapstructure:"compress" yaml:"compress"`

	// LocalTime uses local time for formatting timestamps in rotated files.
	LocalTime bool `mapstructure:"local_time" yaml:"local_time"`
}

// SamplingConfig defines the settings for log sampling.
type SamplingConfig struct {
	// Enabled activates sampling.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Initial is the number of messages to log per second before sampling kicks in.
	Initial int `mapstructure:"initial" yaml:"initial"`
	// Thereafter is the number of messages to log per second after the initial burst.
	Thereafter int `mapstructure:"thereafter" yaml:"thereafter"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		OutputPath: "stderr",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
			LocalTime:  true,
		},
		EnableCaller:     false,
		EnableStacktrace: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Initial:    100,
			Thereafter: 100,
		},
	}
}

// buildEncoderConfig creates a zapcore.EncoderConfig from the logger config.
func (c Config) buildEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if c.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if !c.EnableCaller {
		encoderConfig.CallerKey = zapcore.OmitKey
	}
	if !c.EnableStacktrace {
		encoderConfig.StacktraceKey = zapcore.OmitKey
	}

	return encoderConfig
}
