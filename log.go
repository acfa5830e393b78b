package rfcomm

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger is the structured logger shared by sessions, channels and
// transports. Child loggers carry fields such as the role or the DLCI.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(fields map[string]interface{}) Logger
}

var (
	pkgLogMu sync.Mutex
	pkgLog   Logger
)

// SetLogger replaces the package logger. Engines and transports created
// afterwards log through l.
func SetLogger(l Logger) {
	pkgLogMu.Lock()
	pkgLog = l
	pkgLogMu.Unlock()
}

// GetLogger returns the package logger, a logrus text logger on stderr
// unless SetLogger installed another one.
func GetLogger() Logger {
	pkgLogMu.Lock()
	defer pkgLogMu.Unlock()
	if pkgLog == nil {
		pkgLog = newLogrusLogger(os.Stderr, logrus.InfoLevel)
	}
	return pkgLog
}

// SetLogLevel sets the level of the package logger by name ("debug",
// "info", ...).
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	return setLevel(lvl)
}

// SetLogLevelMax enables every log statement, frame traces included.
func SetLogLevelMax() error {
	return setLevel(logrus.TraceLevel)
}

func setLevel(lvl logrus.Level) error {
	l, ok := GetLogger().(*logrusLogger)
	if !ok {
		return errors.New("level of a custom logger can't be set")
	}
	l.Entry.Logger.SetLevel(lvl)
	return nil
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return newLogrusLogger(io.Discard, logrus.PanicLevel)
}

type logrusLogger struct {
	*logrus.Entry
}

func newLogrusLogger(out io.Writer, lvl logrus.Level) *logrusLogger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     lvl,
		Out:       out,
		Hooks:     make(logrus.LevelHooks),
	}
	return &logrusLogger{Entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) ChildLogger(fields map[string]interface{}) Logger {
	return &logrusLogger{l.Entry.WithFields(fields)}
}
