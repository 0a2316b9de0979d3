// Package hclogger provides glog loggers backed by hclog. Records go to a
// console sink and, when a file path is configured, to a rotating file sink
// with its own level.
package hclogger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-messaging/core"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultName = "messaging"

type Option func(*settings)

type settings struct {
	name   string
	output io.Writer
	exit   func(int)
}

// WithName sets the root logger name.
func WithName(name string) Option {
	return func(s *settings) {
		if name = strings.TrimSpace(name); name != "" {
			s.name = name
		}
	}
}

// WithOutput replaces the console writer, stderr by default.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

func withExit(exit func(int)) Option {
	return func(s *settings) {
		s.exit = exit
	}
}

// Logger adapts an hclog.Logger to glog.Logger.
type Logger struct {
	hc   hclog.Logger
	exit func(int)
}

// New builds the root logger for cfg. The returned closer releases the
// rotating file, it is a no-op when no file sink is configured.
func New(cfg core.LogConfig, opts ...Option) (*Logger, io.Closer, error) {
	s := settings{name: DefaultName, output: os.Stderr, exit: os.Exit}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	consoleLevel, err := parseLevel(cfg.Level, core.DefaultLogLevel)
	if err != nil {
		return nil, nil, err
	}
	root := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       s.name,
		Level:      consoleLevel,
		Output:     s.output,
		JSONFormat: cfg.JSON,
	})

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.File.Path); path != "" {
		fileLevel, err := parseLevel(cfg.File.Level, core.DefaultLogFileLevel)
		if err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positiveOr(cfg.File.MaxSizeMB, core.DefaultLogFileMaxSizeMB),
			MaxBackups: positiveOr(cfg.File.MaxBackups, core.DefaultLogFileMaxBackups),
		}
		root.RegisterSink(hclog.NewSinkAdapter(&hclog.LoggerOptions{
			Name:       s.name,
			Level:      fileLevel,
			Output:     rotating,
			JSONFormat: cfg.JSON,
		}))
		closer = rotating
	}
	return &Logger{hc: root, exit: s.exit}, closer, nil
}

// Wrap adapts an existing hclog logger.
func Wrap(hc hclog.Logger) *Logger {
	if hc == nil {
		hc = hclog.NewNullLogger()
	}
	return &Logger{hc: hc, exit: os.Exit}
}

// HCLog exposes the underlying logger for libraries that take hclog directly.
func (l *Logger) HCLog() hclog.Logger {
	return l.hc
}

func (l *Logger) Trace(msg string, args ...any) { l.hc.Trace(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.hc.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.hc.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.hc.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.hc.Error(msg, args...) }

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.hc.Error(msg, args...)
	l.exit(1)
}

func (l *Logger) WithContext(context.Context) glog.Logger {
	return l
}

// Named returns a child logger, names nest with a dot.
func (l *Logger) Named(name string) *Logger {
	return &Logger{hc: l.hc.Named(name), exit: l.exit}
}

// Provider hands out named children of one root logger.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	if name = strings.TrimSpace(name); name == "" {
		return p.root
	}
	return p.root.Named(name)
}

func parseLevel(raw string, fallback string) (hclog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = fallback
	}
	// accept WARNING as an alias of WARN
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	level := hclog.LevelFromString(value)
	if level == hclog.NoLevel {
		return hclog.NoLevel, core.NewValidationError(fmt.Sprintf("hclogger: unknown log level %q", raw))
	}
	return level, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
