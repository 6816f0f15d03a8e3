package domain

import "context"

type Service interface {
	// Handle verifies, records and applies a raw provider delivery.
	Handle(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error)
	// Replay re-runs a stored event that has not been processed yet.
	Replay(ctx context.Context, eventID string) (Outcome, error)
}
