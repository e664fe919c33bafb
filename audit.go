package sessionwatch

import (
	"io"

	"github.com/MrEthical07/sessionwatch/internal/audit"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the monitor's dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditSignIn           = audit.EventSignIn
	AuditSignInFailed     = audit.EventSignInFailed
	AuditRenewed          = audit.EventRenewed
	AuditWarningShown     = audit.EventWarningShown
	AuditExtended         = audit.EventExtended
	AuditForcedLogout     = audit.EventForcedLogout
	AuditLogout           = audit.EventLogout
	AuditCrossTabRedirect = audit.EventCrossTabRedirect
	AuditTabOpened        = audit.EventTabOpened
	AuditTabClosed        = audit.EventTabClosed
)
