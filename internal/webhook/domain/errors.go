package domain

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrProcessingFailed = errors.New("processing_failed")
	ErrEventNotFound    = errors.New("event_not_found")
)
