package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

//logPackage prefixes the function names of this package's helpers
const logPackage = "github.com/chenBenjamin97/pose-action/pkg/log."

var (
	logger *logrus.Logger
	once   sync.Once
)

type Fields = logrus.Fields

//Options controls where the process logger writes and at which level
type Options struct {
	Level string
	File  string //rotating log file, empty disables it
}

//NewLogger builds the process wide logger once. Later calls return the same logger and ignore opts.
func NewLogger(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        false,
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: formatCaller,
		})

		writers := []io.Writer{os.Stderr}

		if opts.File != "" && os.Getenv("APP_ENV") != "test" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				LocalTime:  true,
				Compress:   true,
				MaxSize:    100,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})

	return logger
}

func formatCaller(f *runtime.Frame) string {
	caller := callSite(f)
	s := strings.Split(caller.Function, ".")
	funcName := s[len(s)-1]
	return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(caller.File), caller.Line, funcName)
}

//callSite walks past the Debug/Info/... helpers below, logrus stops at them
func callSite(f *runtime.Frame) runtime.Frame {
	if !strings.HasPrefix(f.Function, logPackage) {
		return *f
	}

	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs)])

	helperSeen := false
	for {
		fr, more := frames.Next()
		if fr.Function == f.Function {
			helperSeen = true
		} else if helperSeen && !strings.HasPrefix(fr.Function, logPackage) {
			return fr
		}
		if !more {
			return *f
		}
	}
}

func get() *logrus.Logger {
	return NewLogger(Options{Level: "info"})
}

//SetLevel changes the level of the process logger at runtime
func SetLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	get().SetLevel(l)
	return nil
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Fatal(msg)
}
