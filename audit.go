package tokenauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is one authentication decision. Raw tokens never appear here;
// TokenID is the short prefix of the stored token hash.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
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

// LogrusSink writes audit events as structured log entries, info level for
// successes and warn level for failures.
type LogrusSink struct {
	log logrus.FieldLogger
}

func NewLogrusSink(log logrus.FieldLogger) *LogrusSink {
	if log == nil {
		log = logrus.New()
	}
	return &LogrusSink{log: log}
}

func (s *LogrusSink) Emit(_ context.Context, event AuditEvent) {
	fields := logrus.Fields{
		"audit":   event.EventType,
		"success": event.Success,
	}
	if event.Subject != "" {
		fields["username"] = event.Subject
	}
	if event.TokenID != "" {
		fields["token_id"] = event.TokenID
	}
	if event.IP != "" {
		fields["client_ip"] = event.IP
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := s.log.WithFields(fields)
	if event.Success {
		entry.Info("tokenauth: audit")
		return
	}
	entry.Warn("tokenauth: audit")
}
