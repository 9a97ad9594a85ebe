package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// TurnService runs conversation turns
type TurnService interface {
	HandleTurn(ctx context.Context, conversationID string, turnSeq int, text string) (model.ConversationTurnResult, error)
}

// TurnRequest is the body of POST /api/v1/turns
type TurnRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,max=128"`
	TurnSeq        int    `json:"turn_seq" binding:"min=0"`
	Text           string `json:"text" binding:"required,max=4000"`
}

// TurnHandler handles conversation HTTP requests
type TurnHandler struct {
	turns  TurnService
	logger *zap.Logger
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(turns TurnService, logger *zap.Logger) *TurnHandler {
	return &TurnHandler{
		turns:  turns,
		logger: logging.OrNop(logger).Named("http"),
	}
}

// Handle handles POST /api/v1/turns
func (h *TurnHandler) Handle(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.turns.HandleTurn(c.Request.Context(), req.ConversationID, req.TurnSeq, req.Text)
	if err != nil {
		h.logger.Warn("turn failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
