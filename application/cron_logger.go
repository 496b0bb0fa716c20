package application

import (
	log "github.com/sirupsen/logrus"
)

// cronLogger adapts logrus to the cron.Logger interface
type cronLogger struct {
	entry *log.Entry
}

func newCronLogger() cronLogger {
	return cronLogger{entry: log.WithField("component", "scheduler")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(keysAndValues []interface{}) log.Fields {
	fields := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
