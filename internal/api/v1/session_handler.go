package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	tenantService  *service.TenantService
}

func NewSessionHandler(sessionService *service.SessionService, tenantService *service.TenantService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		tenantService:  tenantService,
	}
}

func RegisterSessionRoutes(group *gin.RouterGroup, sessionService *service.SessionService, tenantService *service.TenantService) {
	if sessionService == nil || tenantService == nil {
		return
	}

	handler := NewSessionHandler(sessionService, tenantService)
	sessions := group.Group("/tenants/:tenant_id/sessions")
	sessions.Use(middleware.JWTAuth())
	sessions.GET("/online", handler.Online)
	sessions.GET("/online/:username", handler.SubscriberSessions)
	sessions.GET("/history", handler.History)
	sessions.POST("/disconnect", handler.Disconnect)
	sessions.POST("/rate-limit", handler.PushRateLimit)
}

func (h *SessionHandler) Online(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	sessions, err := h.sessionService.OnlineUsers(c.Request.Context(), tenant)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, sessions)
}

func (h *SessionHandler) SubscriberSessions(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "username is required")
		return
	}

	sessions, err := h.sessionService.SubscriberSessions(c.Request.Context(), tenant, username)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, sessions)
}

func (h *SessionHandler) History(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 20)

	req := service.SessionHistoryRequest{
		Username:     strings.TrimSpace(c.Query("username")),
		NasIPAddress: strings.TrimSpace(c.Query("nas_ip")),
		Limit:        int32(pageSize),
		Offset:       int32((page - 1) * pageSize),
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "from must be RFC3339")
			return
		}
		req.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "to must be RFC3339")
			return
		}
		req.To = &to
	}

	sessions, total, err := h.sessionService.History(c.Request.Context(), tenant, req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Paginated(c, sessions, page, pageSize, total)
}

type disconnectRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "username is required")
		return
	}

	result, err := h.sessionService.Disconnect(c.Request.Context(), tenant, req.Username)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, result)
}

type rateLimitRequest struct {
	Username  string `json:"username" binding:"required"`
	RateLimit string `json:"rate_limit" binding:"required"`
}

func (h *SessionHandler) PushRateLimit(c *gin.Context) {
	tenant, ok := resolveTenant(c, h.tenantService)
	if !ok {
		return
	}

	var req rateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "username and rate_limit are required")
		return
	}

	result, err := h.sessionService.PushRateLimit(c.Request.Context(), tenant, req.Username, req.RateLimit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		return
	}

	response.Success(c, result)
}
