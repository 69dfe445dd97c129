// Package notify carries user-facing notices from the orchestration layer to
// whatever surface renders them (toast, log line, AMQP event).
package notify

import (
	"context"
	"log/slog"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Display durations. Affordability errors stay on screen longer than a
// generic toast so the user registers why nothing happened.
const (
	DurationDefault  = 4 * time.Second
	DurationExtended = 10 * time.Second
)

// Notice is one user-visible notification.
type Notice struct {
	Level    Level
	Message  string
	Duration time.Duration
}

func Success(message string) Notice {
	return Notice{Level: LevelSuccess, Message: message, Duration: DurationDefault}
}

func Error(message string) Notice {
	return Notice{Level: LevelError, Message: message, Duration: DurationDefault}
}

// ExtendedError is an error notice with the longer display duration.
func ExtendedError(message string) Notice {
	return Notice{Level: LevelError, Message: message, Duration: DurationExtended}
}

// Notifier receives terminal notices. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier renders notices as structured log lines.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notice) {
	if n.Level == LevelError {
		slog.ErrorContext(ctx, "User notice", "message", n.Message, "duration_ms", n.Duration.Milliseconds())
		return
	}
	slog.InfoContext(ctx, "User notice", "message", n.Message, "duration_ms", n.Duration.Milliseconds())
}
