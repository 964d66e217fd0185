package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Level grades event severity. Warning and above are duplicated into the
// alerts stream.
type Level uint8

const (
	// LevelInfo marks routine events such as successful logins.
	LevelInfo Level = iota
	// LevelWarning marks suspicious but expected events such as failed logins.
	LevelWarning
	// LevelAlert marks likely attacks such as honeypot hits or replay attempts.
	LevelAlert
	// LevelCritical marks events that demand immediate operator attention.
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelAlert:
		return "alert"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseLevel maps a stored level name back to its Level. Unknown names
// degrade to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "warning":
		return LevelWarning
	case "alert":
		return LevelAlert
	case "critical":
		return LevelCritical
	default:
		return LevelInfo
	}
}

// Event is the canonical security event model.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Level      Level             `json:"-"`
	LevelName  string            `json:"level"`
	Kind       string            `json:"kind"`
	Identifier string            `json:"identifier,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel. Used in tests
// and by consumers that stream events elsewhere.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. When an alerts writer
// is attached, warning-and-above events are written there as well.
type JSONWriterSink struct {
	writer io.Writer
	alerts io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// WithAlerts attaches a second writer receiving warning-and-above events.
func (s *JSONWriterSink) WithAlerts(w io.Writer) *JSONWriterSink {
	s.alerts = w
	return s
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	event.LevelName = event.Level.String()
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))

	if s.alerts != nil && event.Level >= LevelWarning {
		_, _ = s.alerts.Write(data)
		_, _ = s.alerts.Write([]byte("\n"))
	}
}
