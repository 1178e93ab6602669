// system.go — обработчик GET /v1/info (информация о Case Store).
// Публичный endpoint для service discovery и мониторинга.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/case-store/internal/config"
)

// InfoResponse — ответ GET /v1/info.
type InfoResponse struct {
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	ServiceID     string    `json:"serviceId"`
	Layout        string    `json:"layout"`
	Formats       []string  `json:"formats"`
	Parsers       []string  `json:"parsers"`
	ExpirationTTL string    `json:"expirationTtl"`
	SweepSchedule string    `json:"sweepSchedule"`
	MaxFileSize   int64     `json:"maxFileSize"`
	Capacity      *Capacity `json:"capacity,omitempty"`
}

// Capacity — ёмкость файловой системы корня хранилища в байтах.
type Capacity struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// DiskUsageFunc возвращает ёмкость файловой системы.
type DiskUsageFunc func() (total, used, available int64, err error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	info      InfoResponse
	diskUsage DiskUsageFunc
}

// NewSystemHandler создаёт обработчик системных endpoints.
// formats — распознаваемые форматы, parsers — имена парсеров имён файлов
// в порядке приоритета. diskUsage может быть nil.
func NewSystemHandler(cfg *config.Config, formats, parsers []string, diskUsage DiskUsageFunc) *SystemHandler {
	return &SystemHandler{
		diskUsage: diskUsage,
		info: InfoResponse{
			Service:       "case-store",
			Version:       config.Version,
			ServiceID:     cfg.ServiceID,
			Layout:        cfg.StorageLayout,
			Formats:       formats,
			Parsers:       parsers,
			ExpirationTTL: cfg.ExpirationTTL.String(),
			SweepSchedule: cfg.SweepSchedule,
			MaxFileSize:   cfg.MaxFileSize,
		},
	}
}

// Routes регистрирует маршрут /v1/info.
func (h *SystemHandler) Routes(r chi.Router) {
	r.Get("/v1/info", h.GetInfo)
}

// GetInfo обрабатывает GET /v1/info.
// Ошибка statfs не считается ошибкой запроса: capacity просто не отдаётся.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	info := h.info
	if h.diskUsage != nil {
		if total, used, available, err := h.diskUsage(); err == nil {
			info.Capacity = &Capacity{Total: total, Used: used, Available: available}
		}
	}
	writeJSON(w, http.StatusOK, info)
}
