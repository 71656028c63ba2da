// Package logger wraps logrus with the formatting and rotation conventions
// used across the coordinator and agent processes.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how a process' logger is initialized.
type Config struct {
	Level     string `mapstructure:"level"`      // debug, info, warn, error
	Format    string `mapstructure:"format"`     // text or json
	Output    string `mapstructure:"output"`     // stdout, stderr or file
	FilePath  string `mapstructure:"file_path"`  // required when Output == "file"
	MaxSizeMB int    `mapstructure:"max_size"`   // lumberjack MaxSize
	MaxAgeDay int    `mapstructure:"max_age"`    // lumberjack MaxAge
	MaxBackup int    `mapstructure:"max_backup"` // lumberjack MaxBackups
	Caller    bool   `mapstructure:"caller"`     // report calling func/file
	Component string `mapstructure:"component"`  // coordinator, scanner, firewall, target
}

// Manager owns the configured logrus instance for one process.
type Manager struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// Global is the process-wide logger instance set by Init. Package-level
// helpers (Info, Warn, Error, Debug) use it so call sites don't need to
// thread a *Manager through every function signature.
var Global *Manager

// Init configures the global logger from cfg. Safe to call once at
// process startup, after flags/config have been parsed.
func Init(cfg Config) (*Manager, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}

	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		l.Warnf("invalid log level %q, defaulting to info", cfg.Level)
	}
	l.SetLevel(level)
	l.SetReportCaller(cfg.Caller)

	if err := applyFormatter(l, cfg); err != nil {
		return nil, err
	}
	if err := applyOutput(l, cfg); err != nil {
		return nil, err
	}

	m := &Manager{
		logger: l,
		fields: logrus.Fields{"component": cfg.Component},
	}
	Global = m
	return m, nil
}

func applyFormatter(l *logrus.Logger, cfg Config) error {
	const timestampFormat = "2006-01-02 15:04:05.000"

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	return nil
}

func applyOutput(l *logrus.Logger, cfg Config) error {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	case "file":
		if cfg.FilePath == "" {
			return fmt.Errorf("file_path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxAge:     nonZero(cfg.MaxAgeDay, 14),
			MaxBackups: nonZero(cfg.MaxBackup, 5),
			Compress:   true,
		})
	default:
		return fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
	return nil
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// entry returns a logrus entry carrying the component field, falling back
// to a bare logrus instance if Init was never called (e.g. in tests).
func entry() *logrus.Entry {
	if Global == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return Global.logger.WithFields(Global.fields)
}

func Debug(msg string, fields logrus.Fields) { entry().WithFields(fields).Debug(msg) }
func Info(msg string, fields logrus.Fields)  { entry().WithFields(fields).Info(msg) }
func Warn(msg string, fields logrus.Fields)  { entry().WithFields(fields).Warn(msg) }

// Error logs err alongside msg; kept separate from Warn/Info since nearly
// every call site has an error value to attach.
func Error(msg string, err error, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["error"] = err
	entry().WithFields(fields).Error(msg)
}
