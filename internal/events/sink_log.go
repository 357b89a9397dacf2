package events

import "log/slog"

// LogSink writes every event to a structured logger at INFO level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink writing to the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event with its salient fields.
func (s *LogSink) Consume(evt Event) {
	attrs := []any{
		slog.String("event_id", evt.ID),
		slog.String("type", string(evt.Type)),
	}
	if evt.Source != "" {
		attrs = append(attrs, slog.String("source", evt.Source))
	}
	if evt.From != "" || evt.To != "" {
		attrs = append(attrs, slog.String("from", evt.From), slog.String("to", evt.To))
	}
	if evt.Origin != "" {
		attrs = append(attrs, slog.String("origin", evt.Origin))
	}
	if evt.Key != "" {
		attrs = append(attrs, slog.String("key", evt.Key))
	}
	if evt.Detail != "" {
		attrs = append(attrs, slog.String("detail", evt.Detail))
	}
	s.logger.Info("fetch layer event", attrs...)
}
