package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsBlockedAndTruncates(t *testing.T) {
	long := strings.Repeat("a", maxAttributeLength+10)
	attrs := SafeAttributes(
		attribute.String("stripe.signature", "t=1,v1=abc"),
		attribute.String("event_type", long),
		attribute.Int("http.status_code", 200),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if got := len(attrs[0].Value.AsString()); got != maxAttributeLength {
		t.Fatalf("expected truncated value, got length %d", got)
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
	err := SafeError(errors.New(strings.Repeat("x", maxAttributeLength*2)))
	if len(err.Error()) != maxAttributeLength {
		t.Fatalf("expected truncated message, got %d", len(err.Error()))
	}
}
