package events

import (
	"context"

	"go.uber.org/zap"
)

// NewAuditLogger returns a handler writing one structured log entry per event.
func NewAuditLogger(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event Event) {
		fields := []zap.Field{
			zap.String("kind", string(event.Kind)),
			zap.Int64("context_id", event.ContextID),
		}
		if event.Doi != nil {
			fields = append(fields,
				zap.Int64("doi_id", event.Doi.ID),
				zap.String("doi", event.Doi.Value),
				zap.Int("status", event.Doi.Status))
		}
		if event.Previous != nil && event.Doi != nil && event.Previous.Status != event.Doi.Status {
			fields = append(fields, zap.Int("previous_status", event.Previous.Status))
		}
		if event.Action != "" {
			fields = append(fields, zap.String("action", event.Action), zap.Int64s("doi_ids", event.DoiIDs))
		}
		logger.Info("doi event", fields...)
	}
}
