package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	LevelError = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

type Logger struct {
	Level int
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewLogger writes to w. Colour is enabled when w is a terminal.
func NewLogger(w io.Writer, level int) *Logger {
	l := &Logger{Level: level, w: w}
	if f, ok := w.(*os.File); ok {
		l.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return l
}

// SetColor forces colour on or off, overriding terminal detection.
func (l *Logger) SetColor(on bool) {
	l.mu.Lock()
	l.color = on
	l.mu.Unlock()
}

func (l *Logger) helper(format string, a []interface{}, msgColor *color.Color, tag string) {
	msg := fmt.Sprintf(format, a...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if msgColor != nil && l.color {
		msgColor.EnableColor()
		msg = msgColor.Sprint(msg)
	}
	fmt.Fprintf(l.w, "[%s] %s\n", tag, msg)
}

func (l *Logger) Debug(format string, a ...interface{}) {
	if l.Level >= LevelDebug {
		l.helper(format, a, color.New(color.FgBlue, color.Italic), "DEBUG")
	}
}

func (l *Logger) Info(format string, a ...interface{}) {
	if l.Level >= LevelInfo {
		l.helper(format, a, nil, "INFO")
	}
}

func (l *Logger) Warning(format string, a ...interface{}) {
	if l.Level >= LevelWarning {
		l.helper(format, a, color.New(color.FgHiYellow), "WARN")
	}
}

// Error prints an error message in red and bold font, regardless of log level
func (l *Logger) Error(format string, a ...interface{}) {
	l.helper(format, a, color.New(color.FgHiRed, color.Bold), "ERROR")
}

func (l *Logger) SetDebugLevel(level int) {
	if level < LevelError {
		level = LevelError
	}
	if level > LevelDebug {
		level = LevelDebug
	}
	l.Level = level
}
