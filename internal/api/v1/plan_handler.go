package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type PlanHandler struct {
	planService   *service.PlanService
	tenantService *service.TenantService
}

func NewPlanHandler(planService *service.PlanService, tenantService *service.TenantService) *PlanHandler {
	return &PlanHandler{
		planService:   planService,
		tenantService: tenantService,
	}
}

func RegisterPlanRoutes(group *gin.RouterGroup, planService *service.PlanService, tenantService *service.TenantService) {
	if planService == nil || tenantService == nil {
		return
	}

	handler := NewPlanHandler(planService, tenantService)
	plans := group.Group("/tenants/:tenant_id/plans")
	plans.Use(middleware.JWTAuth())
	plans.POST("", handler.Create)
	plans.GET("", handler.List)
	plans.GET("/:plan_id", handler.Get)
	plans.PUT("/:plan_id", handler.Update)
	plans.DELETE("/:plan_id", handler.Delete)
}

func (h *PlanHandler) Create(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	plan, err := h.planService.Create(c.Request.Context(), operatorID(c), tenant, req)
	if err != nil {
		handlePlanError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) List(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	plans, err := h.planService.List(c.Request.Context(), tenant)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, plans)
}

func (h *PlanHandler) Get(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	plan, err := h.planService.Get(c.Request.Context(), tenant, c.Param("plan_id"))
	if err != nil {
		handlePlanError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) Update(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	plan, err := h.planService.Update(c.Request.Context(), operatorID(c), tenant, c.Param("plan_id"), req)
	if err != nil {
		handlePlanError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) Delete(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	if err := h.planService.Delete(c.Request.Context(), operatorID(c), tenant, c.Param("plan_id")); err != nil {
		handlePlanError(c, err)
		return
	}

	response.Success(c, nil)
}

func handlePlanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPlanNotFound), errors.Is(err, service.ErrInvalidPlanID):
		response.Fail(c, http.StatusNotFound, response.ErrPlanNotFound, "plan not found")
	case errors.Is(err, service.ErrPlanInUse):
		response.Fail(c, http.StatusConflict, response.ErrPlanInUse, "plan still has subscribers")
	case errors.Is(err, service.ErrInvalidPlanInput):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid plan input")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
