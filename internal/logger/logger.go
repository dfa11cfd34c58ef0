// Package logger provides a configurable logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// AddOutput and SetEnabled return errors if called before Init.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger is a configurable logger that can write to multiple outputs.
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	prefix  string
	enabled bool
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer shared by the dashboard TUI.
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(2000)
	})
	return globalBuffer
}

// Init initializes the global logger. Safe to call more than once; only the
// first call takes effect.
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		globalLogger = &Logger{
			outputs: outputs,
			prefix:  prefix,
			enabled: true,
		}
	})
}

// AddOutput adds an additional output writer, e.g. the dashboard's log buffer writer.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.outputs = append(globalLogger.outputs, w)
	return nil
}

// RemoveOutput removes a previously added output writer.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	kept := make([]io.Writer, 0, len(globalLogger.outputs))
	for _, output := range globalLogger.outputs {
		if output != w {
			kept = append(kept, output)
		}
	}
	globalLogger.outputs = kept
	return nil
}

// SetEnabled enables or disables logging globally.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return errors.New("logger not initialized: call logger.Init() first")
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.enabled = enabled
	return nil
}

// Printf logs a formatted message, tagged with the component prefix passed to
// the call, e.g. "[gossip:127.0.0.1:9042] tick complete".
func Printf(component, format string, v ...interface{}) {
	if globalLogger == nil {
		log.Printf(format, v...)
		return
	}

	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	if !globalLogger.enabled {
		return
	}

	msg := fmt.Sprintf(format, v...)
	msg = strings.TrimSuffix(msg, "\n")

	if component != "" {
		msg = fmt.Sprintf("[%s] %s", component, msg)
	}
	if globalLogger.prefix != "" {
		msg = fmt.Sprintf("[%s] %s", globalLogger.prefix, msg)
	}

	if len(globalLogger.outputs) > 0 {
		line := msg + "\n"
		for _, output := range globalLogger.outputs {
			output.Write([]byte(line))
		}
	}
}

// Infof logs an info-level message for the given component.
func Infof(component, format string, v ...interface{}) {
	Printf(component, "[INFO] "+format, v...)
}

// Errorf logs an error-level message for the given component.
func Errorf(component, format string, v ...interface{}) {
	Printf(component, "[ERROR] "+format, v...)
}

// GetGlobalLogger returns the global logger instance, mostly for tests.
func GetGlobalLogger() *Logger {
	return globalLogger
}
