package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "message"},
	})
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("ENVIRONMENT"))
}

// Configure sets the minimum level. Development environments always log debug.
func Configure(level, environment string) {
	if environment == "development" {
		base.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)
}

// Fields is an alias so callers don't import logrus directly.
type Fields = logrus.Fields

func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	base.Fatalf(format, v...)
}

func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// Logger exposes the underlying logger for libraries that want an io.Writer or *logrus.Logger.
func Logger() *logrus.Logger {
	return base
}
