package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartreply/internal/infrastructure"
)

// HandleWhatsAppWebhook ingests a form-encoded Twilio webhook delivery.
// Per the webhook contract, any failure is a 500 with {"error": ...}.
func (h *Handler) HandleWhatsAppWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid form payload"})
		return
	}

	inbound, err := infrastructure.ParseInboundWhatsApp(c.Request.PostForm)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	inbound.Body = SanitizeString(inbound.Body)

	h.logger.Info("whatsapp webhook received", "from", inbound.From, "sid", inbound.ExternalID)

	result, err := h.replyService.HandleWhatsAppInbound(c.Request.Context(), h.cfg.WebhookUserID, inbound)
	if err != nil {
		h.logger.Error("webhook processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Message received and processed",
		"messageId": result.Message.ID,
	})
}
