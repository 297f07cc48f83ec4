package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type NasHandler struct {
	nasService    *service.NasService
	tenantService *service.TenantService
}

func NewNasHandler(nasService *service.NasService, tenantService *service.TenantService) *NasHandler {
	return &NasHandler{
		nasService:    nasService,
		tenantService: tenantService,
	}
}

func RegisterNasRoutes(group *gin.RouterGroup, nasService *service.NasService, tenantService *service.TenantService) {
	if nasService == nil || tenantService == nil {
		return
	}

	handler := NewNasHandler(nasService, tenantService)
	nas := group.Group("/tenants/:tenant_id/nas")
	nas.Use(middleware.JWTAuth())
	nas.POST("", handler.Create)
	nas.GET("", handler.List)
	nas.GET("/:nas_id", handler.Get)
	nas.PUT("/:nas_id", handler.Update)
	nas.DELETE("/:nas_id", handler.Delete)
}

func (h *NasHandler) Create(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.CreateNasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	nas, err := h.nasService.Create(c.Request.Context(), operatorID(c), tenant, req)
	if err != nil {
		handleNasError(c, err)
		return
	}

	response.Success(c, nas)
}

func (h *NasHandler) List(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	devices, err := h.nasService.List(c.Request.Context(), tenant)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, devices)
}

func (h *NasHandler) Get(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	nas, err := h.nasService.Get(c.Request.Context(), tenant, c.Param("nas_id"))
	if err != nil {
		handleNasError(c, err)
		return
	}

	response.Success(c, nas)
}

func (h *NasHandler) Update(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.UpdateNasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	nas, err := h.nasService.Update(c.Request.Context(), operatorID(c), tenant, c.Param("nas_id"), req)
	if err != nil {
		handleNasError(c, err)
		return
	}

	response.Success(c, nas)
}

func (h *NasHandler) Delete(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	if err := h.nasService.Delete(c.Request.Context(), operatorID(c), tenant, c.Param("nas_id")); err != nil {
		handleNasError(c, err)
		return
	}

	response.Success(c, nil)
}

func handleNasError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNasNotFound), errors.Is(err, service.ErrInvalidNasID):
		response.Fail(c, http.StatusNotFound, response.ErrNasNotFound, "nas device not found")
	case errors.Is(err, service.ErrNasIPTaken):
		response.Fail(c, http.StatusConflict, response.ErrNasIPTaken, "nas ip address already registered")
	case errors.Is(err, service.ErrInvalidNasInput):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid nas input")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
