package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	defaultLogger = log.New(os.Stdout, "", log.LstdFlags)
	minLevel      = INFO
)

func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

func SetLevel(level LogLevel) {
	minLevel = level
}

func levelName(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return "?"
}

func formatMessage(level LogLevel, format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	return fmt.Sprintf("[%s] [OPSDECK] %s", levelName(level), msg)
}

func logAt(level LogLevel, format string, args ...interface{}) {
	if level < minLevel {
		return
	}
	defaultLogger.Println(formatMessage(level, format, args...))
}

func Debug(format string, args ...interface{}) {
	logAt(DEBUG, format, args...)
}

func Info(format string, args ...interface{}) {
	logAt(INFO, format, args...)
}

func Warn(format string, args ...interface{}) {
	logAt(WARN, format, args...)
}

func Error(format string, args ...interface{}) {
	logAt(ERROR, format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(formatMessage(FATAL, format, args...))
}
