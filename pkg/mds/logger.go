package mds

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// retryableHTTPLogrusWrapper adapts a logrus entry to the retryablehttp
// leveled logger. Its messages are demoted one level; the caller logs the
// final outcome.
type retryableHTTPLogrusWrapper struct {
	log *logrus.Entry
}

func (l *retryableHTTPLogrusWrapper) fields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l *retryableHTTPLogrusWrapper) Error(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(l.fields(keysAndValues)).Warn(msg)
}

func (l *retryableHTTPLogrusWrapper) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l *retryableHTTPLogrusWrapper) Debug(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(l.fields(keysAndValues)).Trace(msg)
}

func (l *retryableHTTPLogrusWrapper) Warn(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(l.fields(keysAndValues)).Debug(msg)
}
