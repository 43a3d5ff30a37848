// Package eventlog provides a JSON lines log of pipeline events: segment
// lifecycle, delivery outcomes and audio-source incidents.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Segment event types.
const (
	SegmentStarted   EventType = "segment_started"
	SegmentCompleted EventType = "segment_completed"
	SegmentDiscarded EventType = "segment_discarded"
)

// Delivery event types.
const (
	DeliveryQueued    EventType = "delivery_queued"
	DeliveryCompleted EventType = "delivery_completed"
	DeliveryFailed    EventType = "delivery_failed"
	ArchiveCompleted  EventType = "archive_completed"
	ArchiveFailed     EventType = "archive_failed"
)

// Audio-source event types.
const (
	AudioOverflow EventType = "audio_overflow"
	AudioStall    EventType = "audio_stall"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SegmentDetails contains segment-specific event details.
type SegmentDetails struct {
	Filename   string `json:"filename,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Level      int    `json:"level,omitempty"`
}

// DeliveryDetails contains delivery-specific event details.
type DeliveryDetails struct {
	Filename    string `json:"filename,omitempty"`
	Status      int    `json:"status,omitempty"`
	Category    string `json:"category,omitempty"`
	TLSFallback bool   `json:"tls_fallback,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogSegment logs a segment lifecycle event.
func (l *Logger) LogSegment(eventType EventType, filename string, duration time.Duration, level int) {
	_ = l.Log(&Event{
		Type: eventType,
		Details: &SegmentDetails{
			Filename:   filepath.Base(filename),
			DurationMs: duration.Milliseconds(),
			Level:      level,
		},
	})
}

// LogDelivery logs a delivery outcome event.
func (l *Logger) LogDelivery(eventType EventType, filename string, status int, category string, tlsFallback bool, errMsg string) {
	_ = l.Log(&Event{
		Type: eventType,
		Details: &DeliveryDetails{
			Filename:    filepath.Base(filename),
			Status:      status,
			Category:    category,
			TLSFallback: tlsFallback,
			Error:       errMsg,
		},
	})
}

// LogAudio logs an audio-source incident.
func (l *Logger) LogAudio(eventType EventType, message string) {
	_ = l.Log(&Event{Type: eventType, Message: message})
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads up to n events from the log file, newest first.
// The n parameter is capped at MaxReadLimit.
func ReadLast(filePath string, n int) ([]Event, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, n)
	for i := len(lines) - 1; i >= 0 && len(events) < n; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	return events, nil
}
