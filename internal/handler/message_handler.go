package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/internal/model"
	"webmail/internal/service/message"
)

type MessageHandler struct {
	messageService *message.Service
	logger         *zap.Logger
}

func NewMessageHandler(messageService *message.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, logger: logger}
}

// List handles GET /api/messages?label=&page=&limit=&search=
func (h *MessageHandler) List(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.messageService.List(c.Request.Context(), userID, message.ListParams{
		Label:  c.Query("label"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
		Search: c.Query("search"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stats handles GET /api/messages/stats
func (h *MessageHandler) Stats(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.messageService.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Get handles GET /api/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	view, err := h.messageService.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": view})
}

// Create handles POST /api/messages
func (h *MessageHandler) Create(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		To          []string           `json:"to"`
		Cc          []string           `json:"cc"`
		Bcc         []string           `json:"bcc"`
		Subject     string             `json:"subject"`
		Body        string             `json:"body"`
		IsDraft     bool               `json:"isDraft"`
		Attachments []model.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	view, err := h.messageService.Create(c.Request.Context(), userID, message.CreateInput{
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		Subject:     req.Subject,
		Body:        req.Body,
		IsDraft:     req.IsDraft,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": view})
}

// Update handles PUT /api/messages/:id
func (h *MessageHandler) Update(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c)
		return
	}
	patch, err := message.ParsePatch(raw)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	view, err := h.messageService.Update(c.Request.Context(), userID, id, patch)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": view})
}

// Delete handles DELETE /api/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), userID, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

// Reply handles POST /api/messages/:id/reply
func (h *MessageHandler) Reply(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	view, err := h.messageService.Reply(c.Request.Context(), userID, id, req.Body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": view})
}

// Forward handles POST /api/messages/:id/forward
func (h *MessageHandler) Forward(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req struct {
		To   []string `json:"to"`
		Cc   []string `json:"cc"`
		Bcc  []string `json:"bcc"`
		Body string   `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	view, err := h.messageService.Forward(c.Request.Context(), userID, id, message.ForwardInput{
		To:   req.To,
		Cc:   req.Cc,
		Bcc:  req.Bcc,
		Body: req.Body,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": view})
}
