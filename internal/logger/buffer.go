package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry represents a single log entry captured for the dashboard TUI.
type LogEntry struct {
	Timestamp time.Time
	Component string
	Message   string
}

// LogBuffer is a thread-safe ring buffer of log entries.
type LogBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

// NewLogBuffer creates a new log buffer holding at most maxSize entries.
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends a new log entry, evicting the oldest entry if the buffer is full.
func (lb *LogBuffer) Add(component, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, LogEntry{
		Timestamp: time.Now(),
		Component: component,
		Message:   message,
	})

	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetRecent returns up to count of the most recent log entries.
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count > len(lb.entries) {
		count = len(lb.entries)
	}
	start := len(lb.entries) - count
	if start < 0 {
		start = 0
	}
	result := make([]LogEntry, count)
	copy(result, lb.entries[start:])
	return result
}

// GetAll returns every buffered log entry.
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

// Clear removes all buffered entries.
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = make([]LogEntry, 0, lb.maxSize)
}

// FormatLogEntry renders an entry for display in the dashboard.
func FormatLogEntry(entry LogEntry) string {
	return fmt.Sprintf("[%s] %s: %s",
		entry.Timestamp.Format("15:04:05"),
		entry.Component,
		entry.Message,
	)
}
