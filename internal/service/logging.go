package service

import (
	"context"

	"tgmedia/internal/privacy"
	"tgmedia/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeCaption returns the caption in verbose mode and a truncated form otherwise
func SanitizeCaption(ctx context.Context, caption string) string {
	if caption == "" || IsVerboseLogging(ctx) {
		return caption
	}
	return privacy.TruncateCaption(caption)
}

// SanitizeChatID masks chat ids unless verbose logging is on
func SanitizeChatID(ctx context.Context, chatID int64) interface{} {
	if IsVerboseLogging(ctx) {
		return chatID
	}
	return privacy.MaskChatID(chatID)
}

// LogWithContext returns an entry carrying the request and correlation ids found in ctx
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := tracing.GetRequestID(ctx); id != "" {
		entry = entry.WithField(LogFieldRequestID, id)
	}
	if id := tracing.GetCorrelationID(ctx); id != "" {
		entry = entry.WithField(LogFieldCorrelationID, id)
	}
	if id := tracing.GetOtelTraceID(ctx); id != "" {
		entry = entry.WithField(LogFieldTraceID, id)
	}
	return entry
}
