package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field names shared by every flowpipe log line.
const (
	FieldComponent   = "component"
	FieldPipelineID  = "pipeline_id"
	FieldExecutionID = "execution_id"
	FieldStage       = "stage"
	FieldStep        = "step"
	FieldLabel       = "label"
	FieldValue       = "value"
)

// Logger wraps zerolog.Logger. It satisfies pipeline.Logger, so it can be
// handed to engines and to the Log stage.
type Logger struct {
	logger zerolog.Logger
}

// New creates a logger from cfg, tagged with component.
func New(cfg Config, component string) *Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	output := cfg.Writer
	if output == nil {
		output = outputWriter(cfg.Output)
	}
	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{Out: output, NoColor: cfg.NoColor}
	}

	zc := zerolog.New(output).Level(level).With()
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if component != "" {
		zc = zc.Str(FieldComponent, component)
	}

	return &Logger{logger: zc.Logger()}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{logger: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{logger: l.logger.With().Str(FieldComponent, name).Logger()}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{logger: l.logger.With().Fields(fields).Logger()}
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug().Fields(fields).Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info().Fields(fields).Msg(msg)
}

// Warn logs a warning.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn().Fields(fields).Msg(msg)
}

// Error logs err with a message.
func (l *Logger) Error(err error, msg string, fields map[string]interface{}) {
	l.logger.Error().Err(err).Fields(fields).Msg(msg)
}

// Log emits a labelled value at info level. This is the sink used by the
// Log stage.
func (l *Logger) Log(value interface{}, label string) {
	l.logger.Info().Str(FieldLabel, label).Interface(FieldValue, value).Msg("pipeline value")
}

func outputWriter(output string) io.Writer {
	if strings.ToLower(output) == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}
