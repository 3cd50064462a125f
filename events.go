package authpipe

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventRefresh        EventType = "refresh"
	EventTeardown       EventType = "teardown"
	EventRetryExhausted EventType = "retry_exhausted"
)

// Event is one session lifecycle record. Seq increases with every event a
// client emits. RefreshState is the coordinator state when the event was
// raised: a teardown caused by a failed refresh reports "refreshing".
type Event struct {
	Seq          uint64            `json:"seq"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         EventType         `json:"event_type"`
	RequestID    string            `json:"request_id,omitempty"`
	RefreshState string            `json:"refresh_state,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// EventSink consumes events on the dispatcher goroutine.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

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

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogrusSink logs each event at info level, or warn when it failed.
type LogrusSink struct {
	log logrus.FieldLogger
}

func NewLogrusSink(log logrus.FieldLogger) *LogrusSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusSink{log: log}
}

func (s *LogrusSink) Emit(_ context.Context, event Event) {
	fields := logrus.Fields{
		"event":   string(event.Type),
		"seq":     event.Seq,
		"success": event.Success,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.RefreshState != "" {
		fields["refresh_state"] = event.RefreshState
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}
	entry := s.log.WithFields(fields)
	if event.Error != "" {
		entry.WithField("error", event.Error).Warn("session event")
		return
	}
	entry.Info("session event")
}
