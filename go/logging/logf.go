package logging

import (
	"io"
	"os"
)

var logger = NewLogger(os.Stderr, LevelWarning)

func Infof(format string, a ...interface{}) {
	logger.Info(format, a...)
}

func Debugf(format string, a ...interface{}) {
	logger.Debug(format, a...)
}

func Warningf(format string, a ...interface{}) {
	logger.Warning(format, a...)
}

func Errorf(format string, a ...interface{}) {
	logger.Error(format, a...)
}

func SetLevel(level int) {
	logger.SetDebugLevel(level)
}

func Level() int {
	return logger.Level
}

func SetColor(on bool) {
	logger.SetColor(on)
}

// SetOutput replaces the package logger's writer, re-detecting colour support.
func SetOutput(w io.Writer) {
	level := logger.Level
	logger = NewLogger(w, level)
}
