package api

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/shivang-goliyan/CloudRadius-sub000/internal/api/v1"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

// Services carries everything the HTTP surface needs. Nil entries skip
// their route group, which keeps partial wiring in tests cheap.
type Services struct {
	Auth       *service.AuthService
	Tenant     *service.TenantService
	Subscriber *service.SubscriberService
	Plan       *service.PlanService
	Nas        *service.NasService
	Session    *service.SessionService
	Audit      *service.AuditService
	System     *service.SystemService
}

func RegisterRoutes(group *gin.RouterGroup, services Services) {
	v1.RegisterAuthRoutes(group, services.Auth)
	v1.RegisterTenantRoutes(group, services.Tenant)
	v1.RegisterSubscriberRoutes(group, services.Subscriber, services.Tenant)
	v1.RegisterPlanRoutes(group, services.Plan, services.Tenant)
	v1.RegisterNasRoutes(group, services.Nas, services.Tenant)
	v1.RegisterSessionRoutes(group, services.Session, services.Tenant)
	v1.RegisterAuditRoutes(group, services.Audit, services.Tenant)
	v1.RegisterSystemRoutes(group, services.System)
}
