// Package context carries request-scoped correlation values used by logging and tracing.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type eventKey struct{}
type actorKey struct{}

type eventRef struct {
	id        string
	eventType string
}

type actorRef struct {
	actorType string
	actorID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithEvent tags the context with the provider event being handled.
func WithEvent(ctx context.Context, eventID, eventType string) context.Context {
	return context.WithValue(ctx, eventKey{}, eventRef{
		id:        strings.TrimSpace(eventID),
		eventType: strings.TrimSpace(eventType),
	})
}

func EventFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	ref, _ := ctx.Value(eventKey{}).(eventRef)
	return ref.id, ref.eventType
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorRef{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	ref, _ := ctx.Value(actorKey{}).(actorRef)
	return ref.actorType, ref.actorID
}
