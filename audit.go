package stepup

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine. Events describe what happened,
// never secret material: no codes, secrets, or plaintext tokens appear in
// any field.
const (
	AuditSetupStarted      = "stepup.setup_started"
	AuditEnabled           = "stepup.enabled"
	AuditEnableRejected    = "stepup.enable_rejected"
	AuditDisabled          = "stepup.disabled"
	AuditChallengeIssued   = "stepup.challenge_issued"
	AuditChallengeVerified = "stepup.challenge_verified"
	AuditChallengeFailed   = "stepup.challenge_failed"
	AuditChallengeExpired  = "stepup.challenge_expired"
	AuditRateLimited       = "stepup.rate_limited"
	AuditBackupCodeUsed    = "stepup.backup_code_used"
	AuditBackupRegenerated = "stepup.backup_codes_regenerated"
	AuditDeviceTrusted     = "stepup.device_trusted"
	AuditDeviceBypass      = "stepup.device_bypass"
	AuditDeviceRevoked     = "stepup.device_revoked"
	AuditDeviceRevokedAll  = "stepup.device_revoked_all"
)

// AuditEvent defines a public type used by stepup APIs.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	Factor    string            `json:"factor,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives engine audit events. Implementations must be safe for
// concurrent use; slow sinks only ever cost buffered events, never request
// latency.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink defines a public type used by stepup APIs.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink defines a public type used by stepup APIs.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a sink that forwards events to a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit forwards the event, blocking until delivered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the delivery channel for consumers.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink defines a public type used by stepup APIs.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit serializes the event as a single JSON line.
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
