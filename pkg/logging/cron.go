package logging

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts Logger to cron.Logger. Routine cron messages go to debug.
type cronLogger struct {
	l *Logger
}

// CronLogger returns a cron.Logger writing through l.
func (l *Logger) CronLogger() cron.Logger {
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.logger.Debug().Fields(kvFields(keysAndValues)).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.logger.Error().Err(err).Fields(kvFields(keysAndValues)).Msg(msg)
}

// kvFields turns alternating keys and values into a field map. A trailing
// key without a value is dropped.
func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
