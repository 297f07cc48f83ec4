package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type TenantHandler struct {
	tenantService *service.TenantService
}

func NewTenantHandler(tenantService *service.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Tenant administration is platform-admin only; tenant-bound operators
// manage resources under their own tenant, not the tenant list.
func RegisterTenantRoutes(group *gin.RouterGroup, tenantService *service.TenantService) {
	if tenantService == nil {
		return
	}

	handler := NewTenantHandler(tenantService)
	tenants := group.Group("/tenants")
	tenants.Use(middleware.JWTAuth(), middleware.RequireRole(string(model.OperatorRoleAdmin)))
	tenants.POST("", handler.Create)
	tenants.GET("", handler.List)
	tenants.GET("/:tenant_id", handler.Get)
	tenants.PUT("/:tenant_id", handler.Update)
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req service.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	tenant, err := h.tenantService.Create(c.Request.Context(), operatorID(c), req)
	if err != nil {
		handleTenantError(c, err)
		return
	}

	response.Success(c, tenant)
}

func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenantService.ListActive(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, tenants)
}

func (h *TenantHandler) Get(c *gin.Context) {
	tenant, err := h.tenantService.Get(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		handleTenantError(c, err)
		return
	}

	response.Success(c, tenant)
}

func (h *TenantHandler) Update(c *gin.Context) {
	var req service.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	tenant, err := h.tenantService.Update(c.Request.Context(), operatorID(c), c.Param("tenant_id"), req)
	if err != nil {
		handleTenantError(c, err)
		return
	}

	response.Success(c, tenant)
}

func handleTenantError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound), errors.Is(err, service.ErrInvalidTenantID):
		response.Fail(c, http.StatusNotFound, response.ErrTenantNotFound, "tenant not found")
	case errors.Is(err, service.ErrSlugTaken):
		response.Fail(c, http.StatusConflict, response.ErrSlugTaken, "slug already in use")
	case errors.Is(err, service.ErrInvalidTenantInput):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid tenant input")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
