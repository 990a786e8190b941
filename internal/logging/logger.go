package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger shared by the server and the consumer.
// Every ride, tracking, and notification log line goes through slog so the
// output stays structured end to end.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", "ride-navigation")
}

// WithBooking tags a logger with the booking id so all lines for one ride
// can be correlated.
func WithBooking(logger *slog.Logger, bookingID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("booking_id", bookingID)
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
