package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type SystemHandler struct {
	systemService *service.SystemService
}

func NewSystemHandler(systemService *service.SystemService) *SystemHandler {
	return &SystemHandler{systemService: systemService}
}

func RegisterSystemRoutes(group *gin.RouterGroup, systemService *service.SystemService) {
	if systemService == nil {
		return
	}

	handler := NewSystemHandler(systemService)
	system := group.Group("/system")
	system.Use(middleware.JWTAuth(), middleware.RequireRole(string(model.OperatorRoleAdmin)))
	system.GET("/status", handler.Status)
}

func (h *SystemHandler) Status(c *gin.Context) {
	response.Success(c, h.systemService.Status(c.Request.Context()))
}
