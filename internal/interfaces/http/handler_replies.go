package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartreply/internal/entities"
	"smartreply/internal/usecases"
)

// GenerateReplies runs the generation pipeline for a manually entered message.
func (h *Handler) GenerateReplies(c *gin.Context) {
	var req struct {
		Message   string `json:"message"`
		MessageID string `json:"messageId"`
		Platform  string `json:"platform"`
		Language  string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Language == "" {
		req.Language = "auto"
	}

	var result *usecases.GenerationResult
	var err error
	if req.MessageID != "" {
		// Regenerate for a stored message; its content is the prompt.
		result, err = h.replyService.GenerateForMessage(c.Request.Context(), userID(c), req.MessageID, req.Language)
	} else {
		req.Message = SanitizeString(strings.TrimSpace(req.Message))
		if req.Message == "" || !ValidateLength(req.Message, 1, MaxMessageLength) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}
		if !entities.ValidPlatform(req.Platform) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be whatsapp or email"})
			return
		}
		result, err = h.replyService.GenerateForText(c.Request.Context(), userID(c), req.Platform, "manual", req.Message, req.Language)
	}
	if err != nil {
		h.logger.Error("reply generation failed", "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Message,
		"replies": result.Replies,
		"metrics": result.Metrics,
	})
}

// SendWhatsAppReply sends a chosen reply out through the messaging provider.
func (h *Handler) SendWhatsAppReply(c *gin.Context) {
	var req struct {
		To      string `json:"to"`
		Body    string `json:"body"`
		ReplyID string `json:"replyId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient is required"})
		return
	}

	data, err := h.replyService.SendWhatsAppReply(c.Request.Context(), req.To, req.Body, req.ReplyID)
	if err != nil {
		h.logger.Error("whatsapp send failed", "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// SendEmailReply sends a chosen reply into an email thread.
func (h *Handler) SendEmailReply(c *gin.Context) {
	var req struct {
		ThreadID  string `json:"threadId"`
		MessageID string `json:"messageId"`
		ReplyText string `json:"replyText"`
		ReplyID   string `json:"replyId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	data, err := h.replyService.SendEmailReply(c.Request.Context(), req.ThreadID, req.ReplyText, req.ReplyID)
	if err != nil {
		h.logger.Error("email send failed", "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// FetchEmails pulls unread emails and generates replies for each.
func (h *Handler) FetchEmails(c *gin.Context) {
	emails, err := h.replyService.FetchEmails(c.Request.Context(), userID(c))
	if err != nil {
		h.logger.Error("email fetch failed", "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "emails": emails})
}

// ListMessages returns the caller's messages with replies, newest first.
// Optional query filters: sender, subject (email only), from, to (yyyy-mm-dd,
// "to" inclusive through end of day).
func (h *Handler) ListMessages(c *gin.Context) {
	platform := c.Query("platform")
	if !entities.ValidPlatform(platform) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be whatsapp or email"})
		return
	}

	from, err := ParseDateParam(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, expected yyyy-mm-dd"})
		return
	}
	to, err := ParseDateParam(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, expected yyyy-mm-dd"})
		return
	}

	filters := usecases.Filters{
		Sender:  c.Query("sender"),
		Subject: c.Query("subject"),
		From:    from,
		To:      to,
	}

	messages, err := h.replyService.ListMessages(c.Request.Context(), userID(c), platform, filters)
	if err != nil {
		h.logger.Error("message listing failed", "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// DeleteMessage removes a message; replies go with it via the store's cascade.
func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.replyService.DeleteMessage(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LatestMetrics returns the most recent metrics snapshot for a platform.
func (h *Handler) LatestMetrics(c *gin.Context) {
	platform := c.Query("platform")
	if !entities.ValidPlatform(platform) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be whatsapp or email"})
		return
	}

	m, err := h.metrics.Latest(c.Request.Context(), userID(c), platform)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": m})
}
