package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	service "github.com/mamadbah2/stockcount/internal/service/whatsapp"
)

// WebhookHandler is the chat channel of the counting floor: field workers
// post /count, /empty and /damage commands, supervisors push recount requests.
type WebhookHandler struct {
	chat   service.MessagingService
	logger *zap.Logger
}

// NewWebhookHandler wires the chat channel to the messaging service.
func NewWebhookHandler(chat service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{chat: chat, logger: logger}
}

// Verify answers the subscription handshake with the echoed challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	challenge, err := h.chat.VerifyWebhookToken(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		h.logger.Warn("chat subscription rejected", zap.String("mode", c.Query("hub.mode")), zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, challenge)
}

// Receive runs the floor commands carried by a delivery. It always
// acknowledges a well-formed delivery: the platform redelivers on non-2xx,
// and a redelivered /count would record the entry twice.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var delivery models.WebhookPayload
	if err := c.ShouldBindJSON(&delivery); err != nil {
		h.logger.Warn("unreadable chat delivery", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	messages, commands, senders := tallyDelivery(delivery)
	log := h.logger.With(
		zap.Int("messages", messages),
		zap.Int("commands", commands),
		zap.Int("senders", senders),
	)
	if messages == 0 {
		log.Debug("chat delivery without messages")
	}

	if err := h.chat.HandleWebhook(c.Request.Context(), delivery); err != nil {
		log.Error("floor command replies failed", zap.Error(err))
	} else if commands > 0 {
		log.Info("floor commands handled")
	}

	c.Status(http.StatusOK)
}

// SendMessage pushes a supervisor note, usually a recount request, to a
// field worker's phone.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var note models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&note); err != nil {
		h.logger.Warn("invalid supervisor note", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	note.To = strings.TrimPrefix(strings.TrimSpace(note.To), "+")
	note.Message = strings.TrimSpace(note.Message)
	if note.To == "" || note.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and message are required"})
		return
	}

	if err := h.chat.SendOutbound(c.Request.Context(), note); err != nil {
		h.logger.Error("supervisor note not delivered", zap.String("to", note.To), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to send message"})
		return
	}

	c.Status(http.StatusAccepted)
}

// tallyDelivery counts inbound messages, how many of them parse as floor
// commands and how many distinct phones sent them.
func tallyDelivery(delivery models.WebhookPayload) (messages, commands, senders int) {
	phones := make(map[string]struct{})
	for _, entry := range delivery.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				messages++
				phones[msg.From] = struct{}{}
				if msg.Text != nil && models.ParseCommand(msg.Text.Body).Type != models.CommandUnknown {
					commands++
				}
			}
		}
	}
	return messages, commands, len(phones)
}
