package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

const importMaxRows = 1000

type SubscriberHandler struct {
	subscriberService *service.SubscriberService
	tenantService     *service.TenantService
}

func NewSubscriberHandler(subscriberService *service.SubscriberService, tenantService *service.TenantService) *SubscriberHandler {
	return &SubscriberHandler{
		subscriberService: subscriberService,
		tenantService:     tenantService,
	}
}

func RegisterSubscriberRoutes(group *gin.RouterGroup, subscriberService *service.SubscriberService, tenantService *service.TenantService) {
	if subscriberService == nil || tenantService == nil {
		return
	}

	handler := NewSubscriberHandler(subscriberService, tenantService)
	subs := group.Group("/tenants/:tenant_id/subscribers")
	subs.Use(middleware.JWTAuth())
	subs.POST("", handler.Create)
	subs.POST("/import", handler.Import)
	subs.GET("", handler.List)
	subs.GET("/:subscriber_id", handler.Get)
	subs.PUT("/:subscriber_id", handler.Update)
	subs.DELETE("/:subscriber_id", handler.Delete)
	subs.POST("/:subscriber_id/suspend", handler.Suspend)
	subs.POST("/:subscriber_id/reactivate", handler.Reactivate)
	subs.POST("/:subscriber_id/disable", handler.Disable)
	subs.POST("/:subscriber_id/renew", handler.Renew)
}

func (h *SubscriberHandler) Create(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.CreateSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	sub, err := h.subscriberService.Create(c.Request.Context(), operatorID(c), tenant, req)
	if err != nil {
		handleSubscriberError(c, err)
		return
	}

	response.Success(c, sub)
}

func (h *SubscriberHandler) Import(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var rows []service.CreateSubscriberRequest
	if err := c.ShouldBindJSON(&rows); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}
	if len(rows) == 0 || len(rows) > importMaxRows {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "import accepts 1 to 1000 rows")
		return
	}

	result := h.subscriberService.Import(c.Request.Context(), operatorID(c), tenant, rows)
	response.Success(c, result)
}

func (h *SubscriberHandler) List(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 20)

	filter := repository.SubscriberListFilter{
		Pagination: repository.Pagination{
			Limit:  int32(pageSize),
			Offset: int32((page - 1) * pageSize),
		},
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := model.SubscriberStatus(raw)
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("keyword")); raw != "" {
		filter.Keyword = &raw
	}

	items, total, err := h.subscriberService.List(c.Request.Context(), tenant, filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Paginated(c, items, page, pageSize, total)
}

func (h *SubscriberHandler) Get(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	sub, err := h.subscriberService.Get(c.Request.Context(), tenant, c.Param("subscriber_id"))
	if err != nil {
		handleSubscriberError(c, err)
		return
	}

	response.Success(c, sub)
}

func (h *SubscriberHandler) Update(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req service.UpdateSubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request body")
		return
	}

	sub, err := h.subscriberService.Update(c.Request.Context(), operatorID(c), tenant, c.Param("subscriber_id"), req)
	if err != nil {
		handleSubscriberError(c, err)
		return
	}

	response.Success(c, sub)
}

func (h *SubscriberHandler) Delete(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	if err := h.subscriberService.Delete(c.Request.Context(), operatorID(c), tenant, c.Param("subscriber_id")); err != nil {
		handleSubscriberError(c, err)
		return
	}

	response.Success(c, nil)
}

func (h *SubscriberHandler) Suspend(c *gin.Context) {
	h.statusAction(c, h.subscriberService.Suspend)
}

func (h *SubscriberHandler) Reactivate(c *gin.Context) {
	h.statusAction(c, h.subscriberService.Reactivate)
}

func (h *SubscriberHandler) Disable(c *gin.Context) {
	h.statusAction(c, h.subscriberService.Disable)
}

func (h *SubscriberHandler) Renew(c *gin.Context) {
	h.statusAction(c, h.subscriberService.Renew)
}

func (h *SubscriberHandler) statusAction(
	c *gin.Context,
	action func(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error),
) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	sub, err := action(c.Request.Context(), operatorID(c), tenant, c.Param("subscriber_id"))
	if err != nil {
		handleSubscriberError(c, err)
		return
	}

	response.Success(c, sub)
}

func handleSubscriberError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSubscriberNotFound), errors.Is(err, service.ErrInvalidSubscriberID):
		response.Fail(c, http.StatusNotFound, response.ErrSubscriberNotFound, "subscriber not found")
	case errors.Is(err, service.ErrUsernameTaken):
		response.Fail(c, http.StatusConflict, response.ErrUsernameTaken, "username already in use")
	case errors.Is(err, service.ErrSubscriberDisabled):
		response.Fail(c, http.StatusConflict, response.ErrSubscriberDisabled, "subscriber is disabled")
	case errors.Is(err, service.ErrNotSuspended):
		response.Fail(c, http.StatusConflict, response.ErrNotSuspended, "subscriber is not suspended")
	case errors.Is(err, service.ErrPlanNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrPlanNotFound, "plan not found")
	case errors.Is(err, service.ErrInvalidSubscriberInput):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid subscriber input")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
