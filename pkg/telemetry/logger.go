package telemetry

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with up-specific fields.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
	// file is the log file opened by NewLogger, closed by Close.
	file *os.File
}

// timeFormatOnce guards zerolog.TimeFieldFormat, which is process-global.
var timeFormatOnce sync.Once

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	switch cfg.Output {
	case "stdout":
		return NewLoggerTo(os.Stdout, cfg), nil
	case "stderr", "":
		return NewLoggerTo(os.Stderr, cfg), nil
	}

	// Anything else is a file path.
	file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l := NewLoggerTo(file, cfg)
	l.file = file
	return l, nil
}

// Close closes the log file opened by NewLogger. Loggers writing to a
// stream or derived from another logger have nothing to close.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, cfg LoggingConfig) *Logger {
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: getTimeFormat(cfg.TimeFormat),
			NoColor:    cfg.NoColor,
		}
	}

	// The first logger decides the format of the time field for the process.
	timeFormatOnce.Do(func() {
		switch cfg.TimeFormat {
		case "unix":
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		case "unixms":
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		default:
			zerolog.TimeFieldFormat = time.RFC3339
		}
	})

	zlog := zerolog.New(w).With().Timestamp().Logger().Level(parseLogLevel(cfg.Level))
	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog, config: cfg}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.WithField("component", component)
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger(), config: l.config}
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Interface(key, value).Logger(),
		config: l.config,
	}
}

// WithRunID adds a run_id field to the logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithField("run_id", runID)
}

// WithTaskID adds a task field to the logger.
func (l *Logger) WithTaskID(taskID string) *Logger {
	return l.WithField("task", taskID)
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Err(err).Logger(),
		config: l.config,
	}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// getTimeFormat returns the time layout for console output.
func getTimeFormat(format string) string {
	switch format {
	case "kitchen":
		return time.Kitchen
	case "unix":
		return "unix"
	default:
		return time.RFC3339
	}
}
