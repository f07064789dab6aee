// Package klog is the leveled logger shared by the arena, slab, and kmem
// packages and the vmemctl command, in the style of a small Debug/Info/Error logger wrapper
// over the standard library's log package.
package klog

import (
	"fmt"
	"log"
	"os"
)

// Level controls which calls actually reach a logger.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

var current = LevelInfo

var (
	debugLogger *log.Logger
	infoLogger  *log.Logger
	errorLogger *log.Logger
)

func init() {
	debugLogger = log.New(os.Stdout, "[DEBUG] ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger = log.New(os.Stdout, "[INFO] ", log.Ldate|log.Ltime|log.Lshortfile)
	errorLogger = log.New(os.Stderr, "[ERROR] ", log.Ldate|log.Ltime|log.Lshortfile)
}

// SetLevel adjusts the global log level; callers (e.g. the CLI) use this to
// turn on Debug output.
func SetLevel(l Level) { current = l }

func Debug(format string, v ...interface{}) {
	if current >= LevelDebug {
		debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Info(format string, v ...interface{}) {
	if current >= LevelInfo {
		infoLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Error(format string, v ...interface{}) {
	if current >= LevelError {
		errorLogger.Output(2, fmt.Sprintf(format, v...))
	}
}
