package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	appRAG "github.com/ragcore/backend/internal/application/rag"
	"github.com/ragcore/backend/internal/interfaces/http/middleware"
	"github.com/ragcore/backend/internal/interfaces/http/response"
)

// AdminHandler 统计、缓存与健康检查
type AdminHandler struct {
	orchestrator *appRAG.Orchestrator
	generation   *appRAG.GenerationService
}

// NewAdminHandler 创建处理器
func NewAdminHandler(orchestrator *appRAG.Orchestrator, generation *appRAG.GenerationService) *AdminHandler {
	return &AdminHandler{
		orchestrator: orchestrator,
		generation:   generation,
	}
}

// StatsResponse 租户统计与缓存计数
type StatsResponse struct {
	appRAG.TenantStats
	Cache appRAG.CacheStats `json:"cache"`
}

// InvalidateResponse 缓存清除结果
type InvalidateResponse struct {
	TenantID string `json:"tenantId"`
	Removed  int    `json:"removed"`
}

// Stats 租户统计
// @Summary 获取租户查询统计
// @Tags 运维
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Success 200 {object} StatsResponse
// @Router /rag/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		TenantStats: h.orchestrator.GetStats(middleware.TenantID(c)),
		Cache:       h.orchestrator.CacheStats(),
	})
}

// InvalidateCache 清除租户缓存
// @Summary 清除租户响应缓存
// @Tags 运维
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Success 200 {object} InvalidateResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /rag/cache [delete]
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	tenant := middleware.TenantID(c)
	removed, err := h.orchestrator.InvalidateCache(c.Request.Context(), tenant)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, InvalidateResponse{TenantID: tenant, Removed: removed})
}

// ProviderStatus 提供方状态
// @Summary 获取 LLM 提供方状态
// @Tags 运维
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Success 200 {object} map[string]domainRAG.ProviderStatus
// @Router /rag/providers/status [get]
func (h *AdminHandler) ProviderStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.generation.GetProviderStatus(c.Request.Context()))
}

// Health 流水线健康检查，DOWN 时返回 503
// @Summary 流水线健康检查
// @Tags 运维
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Success 200 {object} appRAG.HealthReport
// @Failure 503 {object} appRAG.HealthReport
// @Router /rag/health [get]
func (h *AdminHandler) Health(c *gin.Context) {
	report := h.orchestrator.Health(c.Request.Context())
	code := http.StatusOK
	if report.Status != appRAG.HealthUp {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
