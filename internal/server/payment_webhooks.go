package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBodyBytes mirrors the provider's documented event size ceiling.
const maxWebhookBodyBytes = 65536

const headerStripeSignature = "Stripe-Signature"

// HandleStripeWebhook acknowledges processed and duplicate deliveries with
// 200. Signature failures are 400, bodies over the ceiling 413, and handler
// failures 500 so the provider retries.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.Warn("webhook body over limit", zap.Int64("limit_bytes", tooLarge.Limit))
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader(headerStripeSignature))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}
