package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/gigvault/escrow/internal/webhook/domain"
)

// HandleGatewayWebhook acknowledges with 200 for anything the processor
// accepts (including duplicates), 400 for bad signatures or payloads, and
// 500 for handler failures so the gateway redelivers.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_body"})
		return
	}

	err = s.webhooks.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Razorpay-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, webhookdomain.ErrInvalidSignature),
		errors.Is(err, webhookdomain.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"status": "rejected"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
	}
}
