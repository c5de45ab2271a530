// Package logging is the structured logger every RelayPACS component takes
// by injection, backed by log/slog.
package logging

import "context"

// Logger takes alternating key/value pairs after the message:
//
//	log.Info(ctx, "chunk recorded", "study_id", id, "index", idx)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn is for failures that were absorbed, such as a sweep that could
	// not delete a study.
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	// With returns a child logger carrying args on every record.
	With(args ...any) Logger
}
