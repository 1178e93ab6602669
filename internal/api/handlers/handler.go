// handler.go — APIHandler собирает доменные handlers и регистрирует
// их маршруты в роутере chi.
package handlers

import (
	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка регистрации всех endpoints.
type APIHandler struct {
	cases       *CasesHandler
	maintenance *MaintenanceHandler
	system      *SystemHandler
	health      *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	cases *CasesHandler,
	maintenance *MaintenanceHandler,
	system *SystemHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		cases:       cases,
		maintenance: maintenance,
		system:      system,
		health:      health,
	}
}

// Register регистрирует маршруты всех handlers.
func (h *APIHandler) Register(r chi.Router) {
	h.health.Routes(r)
	h.system.Routes(r)
	h.cases.Routes(r)
	h.maintenance.Routes(r)
}
