package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const stripeSignatureHeader = "Stripe-Signature"

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	limit := s.cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = 64 * 1024
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if timeout := s.cfg.Webhook.ProcessTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := s.webhookSvc.Handle(ctx, payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("event_type", eventTypeOf(payload))
	c.Set("webhook_outcome", string(outcome))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": outcome})
}

// eventTypeOf reads the envelope type for request logs once the payload has been verified.
func eventTypeOf(payload []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	if len(envelope.Type) > 128 {
		return envelope.Type[:128]
	}
	return envelope.Type
}
