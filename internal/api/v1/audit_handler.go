package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type AuditHandler struct {
	auditService  *service.AuditService
	tenantService *service.TenantService
}

func NewAuditHandler(auditService *service.AuditService, tenantService *service.TenantService) *AuditHandler {
	return &AuditHandler{
		auditService:  auditService,
		tenantService: tenantService,
	}
}

func RegisterAuditRoutes(group *gin.RouterGroup, auditService *service.AuditService, tenantService *service.TenantService) {
	if auditService == nil || tenantService == nil {
		return
	}

	handler := NewAuditHandler(auditService, tenantService)
	audits := group.Group("/tenants/:tenant_id/audit-logs")
	audits.Use(middleware.JWTAuth())
	audits.GET("", handler.List)
}

func (h *AuditHandler) List(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 50)

	entries, err := h.auditService.ListByTenant(c.Request.Context(), tenant.ID.String(), repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	})
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, entries)
}
