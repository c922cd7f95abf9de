package imagelayer

import (
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ImageAssigned does nothing and returns nil
func (n *NoopEventSink) ImageAssigned(layerID uuid.UUID, previous, current *Content, broadcast bool) error {
	return nil
}

// UseAfterDestroy does nothing and returns nil
func (n *NoopEventSink) UseAfterDestroy(layerID uuid.UUID, op string) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// ImageAssigned logs the replacement
func (l *LoggingEventSink) ImageAssigned(layerID uuid.UUID, previous, current *Content, broadcast bool) error {
	l.logger.Info("image assigned",
		"layer_id", layerID,
		"previous", contentLabel(previous),
		"current", contentLabel(current),
		"broadcast", broadcast)
	return nil
}

// UseAfterDestroy logs the rejected operation
func (l *LoggingEventSink) UseAfterDestroy(layerID uuid.UUID, op string) error {
	l.logger.Warn("layer used after destroy", "layer_id", layerID, "op", op)
	return nil
}

func contentLabel(c *Content) string {
	if c == nil {
		return "default"
	}
	return c.ID().String()
}
