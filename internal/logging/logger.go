package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// EnvFormat controls the output handler format for structured logs.
	EnvFormat = "LOG_FORMAT"
	// EnvLevel controls the minimum severity level for structured logs.
	EnvLevel = "LOG_LEVEL"
	// EnvFile sends logs to a rotated file instead of the command writer.
	// The value "splunk" resolves to $SPLUNK_HOME/var/log/splunk/flare-splunk.log.
	EnvFile = "LOG_FILE"

	AppName = "flare-splunk"

	defaultFormat = "json"
	defaultLevel  = "info"

	splunkLogFile  = "splunk"
	fileMaxBackups = 5
	fileMaxAgeDays = 5
	fileMaxSizeMB  = 25
)

// Config is the validated logging configuration derived from environment variables.
type Config struct {
	Format string
	Level  slog.Level
	File   string
}

// BootstrapOptions controls logger initialization behavior.
type BootstrapOptions struct {
	Command string
	// Writer receives logs when no log file is configured. Commands that
	// write events to stdout pass os.Stderr.
	Writer io.Writer
}

// DefaultConfig returns the default structured logging configuration.
func DefaultConfig() Config {
	return Config{
		Format: defaultFormat,
		Level:  slog.LevelInfo,
	}
}

// LoadConfigFromEnv parses and validates logging environment variables.
func LoadConfigFromEnv() (Config, error) {
	format, err := parseFormat(os.Getenv(EnvFormat))
	if err != nil {
		return Config{}, err
	}
	level, err := parseLevel(os.Getenv(EnvLevel))
	if err != nil {
		return Config{}, err
	}
	return Config{
		Format: format,
		Level:  level,
		File:   resolveFile(os.Getenv(EnvFile), os.Getenv("SPLUNK_HOME")),
	}, nil
}

// NewLogger creates a structured logger with static flare-splunk context attributes.
func NewLogger(cfg Config, writer io.Writer, command string) *slog.Logger {
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	command = strings.TrimSpace(command)
	if command == "" {
		command = AppName
	}
	return slog.New(handler).With("app", AppName, "command", command)
}

// BootstrapFromEnv loads logging config from env, installs the default logger, and returns it.
func BootstrapFromEnv(opts BootstrapOptions) (*slog.Logger, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, OutputWriter(cfg, opts.Writer), opts.Command)
	slog.SetDefault(logger)
	return logger, nil
}

// OutputWriter returns the rotating log file of cfg, or fallback when no file
// is configured.
func OutputWriter(cfg Config, fallback io.Writer) io.Writer {
	if cfg.File == "" {
		return fallback
	}
	return newFileWriter(cfg.File)
}

func newFileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
	}
}

func resolveFile(raw, splunkHome string) string {
	file := strings.TrimSpace(raw)
	if !strings.EqualFold(file, splunkLogFile) {
		return file
	}
	if home := strings.TrimSpace(splunkHome); home != "" {
		return filepath.Join(home, "var", "log", "splunk", AppName+".log")
	}
	return filepath.Join(os.TempDir(), AppName+".log")
}

func parseFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		return defaultFormat, nil
	}
	switch format {
	case "json", "text":
		return format, nil
	default:
		return "", fmt.Errorf("%s must be one of: json, text", EnvFormat)
	}
}

func parseLevel(raw string) (slog.Level, error) {
	level := strings.ToLower(strings.TrimSpace(raw))
	if level == "" {
		level = defaultLevel
	}
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%s must be one of: debug, info, warn, error", EnvLevel)
	}
}
