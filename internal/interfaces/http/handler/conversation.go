package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	appRAG "github.com/ragcore/backend/internal/application/rag"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/interfaces/http/middleware"
	"github.com/ragcore/backend/internal/interfaces/http/response"
)

// ConversationHandler 对话处理器
type ConversationHandler struct {
	orchestrator  *appRAG.Orchestrator
	conversations *appRAG.ConversationManager
}

// NewConversationHandler 创建对话处理器
func NewConversationHandler(orchestrator *appRAG.Orchestrator, conversations *appRAG.ConversationManager) *ConversationHandler {
	return &ConversationHandler{
		orchestrator:  orchestrator,
		conversations: conversations,
	}
}

// Summary 对话摘要
// @Summary 获取对话摘要
// @Tags 对话
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param id path string true "对话 ID"
// @Success 200 {object} domainRAG.ConversationSummary
// @Failure 404 {object} response.ErrorResponse
// @Router /rag/conversations/{id} [get]
func (h *ConversationHandler) Summary(c *gin.Context) {
	summary, err := h.conversations.GetSummary(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Stats 对话统计
// @Summary 获取对话统计
// @Tags 对话
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param id path string true "对话 ID"
// @Success 200 {object} domainRAG.ConversationStats
// @Failure 404 {object} response.ErrorResponse
// @Router /rag/conversations/{id}/stats [get]
func (h *ConversationHandler) Stats(c *gin.Context) {
	stats, err := h.conversations.GetStats(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Delete 删除对话
// @Summary 删除对话
// @Tags 对话
// @Param tenant-id header string true "租户 ID"
// @Param id path string true "对话 ID"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Router /rag/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.orchestrator.DeleteConversation(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !deleted {
		response.FromError(c, domainRAG.NewNotFoundError("conversation", id))
		return
	}
	c.Status(http.StatusNoContent)
}
