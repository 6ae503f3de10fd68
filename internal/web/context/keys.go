// Package context holds the request-scoped values shared by the HTTP middleware
// and handlers.
package context

import (
	"context"
	"slices"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	subjectKey
	scopesKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetSubject returns the authenticated token subject, or ""
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}

// SetSubject records the authenticated token subject
func SetSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// GetScopes returns the scopes granted to the request's token
func GetScopes(ctx context.Context) []string {
	if scopes, ok := ctx.Value(scopesKey).([]string); ok {
		return scopes
	}
	return nil
}

// SetScopes records the scopes granted to the request's token
func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey, slices.Clone(scopes))
}
