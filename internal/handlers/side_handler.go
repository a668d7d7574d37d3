package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/storefront-payments/internal/chat"
	"github.com/imrishuroy/storefront-payments/internal/notify"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

// chat proxies the completion; upstream status and body go back verbatim.
func (h *handler) chat(c *gin.Context) {
	var req validation.ChatRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}

	msgs := make([]chat.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chat.Message{Role: m.Role, Content: m.Content})
	}
	resp, err := h.cfg.Chat.Complete(c.Request.Context(), req.Model, msgs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(resp.StatusCode, resp.ContentType, resp.Body)
}

func (h *handler) sendEmail(c *gin.Context) {
	var req validation.EmailRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}
	err := h.cfg.Mailer.Send(c.Request.Context(), notify.Message{
		To:      req.To,
		Name:    req.Name,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}
