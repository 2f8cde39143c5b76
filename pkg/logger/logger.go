package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// Log is the global logger instance
	Log  *logrus.Logger
	once sync.Once
)

// Init initializes the global logger. Format is either "text" or "json".
func Init(level, format, logFile string) error {
	var err error
	once.Do(func() {
		Log = logrus.New()

		var logLevel logrus.Level
		logLevel, err = logrus.ParseLevel(level)
		if err != nil {
			return
		}
		Log.SetLevel(logLevel)

		var out io.Writer = os.Stderr
		if logFile != "" {
			var f *os.File
			f, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return
			}
			out = f
		}
		// stdout is reserved for the plan and the run report
		Log.SetOutput(out)

		switch format {
		case "", "text":
			Log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})
		case "json":
			Log.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
			})
		default:
			err = fmt.Errorf("unknown log format %q", format)
		}
	})
	return err
}

// Get returns the global logger instance, initializing with defaults if needed
func Get() *logrus.Logger {
	if Log == nil {
		_ = Init("info", "text", "")
	}
	return Log
}

// For returns an entry tagged with the component that emits it.
func For(component string) *logrus.Entry {
	return Get().WithField("component", component)
}
