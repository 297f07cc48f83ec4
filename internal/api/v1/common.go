package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/response"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

func isAdmin(role string) bool {
	return strings.EqualFold(role, string(model.OperatorRoleAdmin))
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func operatorID(c *gin.Context) string {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return ""
	}
	return claims.OperatorID
}

// resolveTenant loads the tenant from the :tenant_id path parameter and
// enforces scoping: tenant-bound operators only reach their own tenant,
// platform admins (empty tenant claim) reach any.
func resolveTenant(c *gin.Context, tenantSvc *service.TenantService) (*model.Tenant, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return nil, false
	}

	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if claims.TenantID != "" && claims.TenantID != tenantID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
		return nil, false
	}

	tenant, err := tenantSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, service.ErrTenantNotFound) || errors.Is(err, service.ErrInvalidTenantID) {
			response.Fail(c, http.StatusNotFound, response.ErrTenantNotFound, "tenant not found")
		} else {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
		}
		return nil, false
	}

	if tenant.Status != model.TenantStatusActive {
		response.Fail(c, http.StatusForbidden, response.ErrTenantSuspended, "tenant suspended")
		return nil, false
	}

	return tenant, true
}
