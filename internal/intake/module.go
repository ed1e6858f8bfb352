// Package intake provides the screening conversation bounded context module.
package intake

import (
	apphttp "intake_backend/internal/http"
	"intake_backend/internal/intake/engine"
	"intake_backend/internal/intake/handler"
	"intake_backend/internal/intake/service"
	"intake_backend/internal/leads/domain"
	"intake_backend/internal/sessions"
	"intake_backend/internal/studies"
	"intake_backend/platform/logger"
	"intake_backend/platform/validator"
)

// Module is the intake bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the intake module.
func NewModule(leadStore domain.Store, sessionStore sessions.Store, loader *studies.Loader, defaultStudyID string, val *validator.Validator, log *logger.Logger) *Module {
	eng := engine.New(leadStore, log)
	svc := service.New(eng, sessionStore, loader, log)
	h := handler.New(svc, val, defaultStudyID)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "intake"
}

// Service returns the service layer for external wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts intake routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/intake"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
