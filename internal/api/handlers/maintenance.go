// maintenance.go — обработчики /v1/maintenance/*.
// Ручной запуск очистки истёкших кейсов, сверки хранилищ и переиндексации.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/case-store/internal/api/errors"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/service"
)

// SweepRunner — ручной запуск очистки. Реализуется *service.Sweeper.
type SweepRunner interface {
	// RunOnce выполняет один проход. Второе значение — проход пропущен,
	// потому что предыдущий ещё выполняется.
	RunOnce(ctx context.Context) (*service.SweepResult, bool)
	// Pending возвращает истёкшие, но ещё не удалённые записи.
	Pending(ctx context.Context) ([]*model.ExpirationRecord, error)
}

// ReconcileRunner — ручной запуск сверки. Реализуется *service.ReconcileService.
type ReconcileRunner interface {
	RunOnce(ctx context.Context, repair bool) (*service.ReconcileResult, bool, error)
	Reindex(ctx context.Context) (int, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	sweeper    SweepRunner
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(sweeper SweepRunner, reconciler ReconcileRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper:    sweeper,
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Routes регистрирует маршруты /v1/maintenance.
func (h *MaintenanceHandler) Routes(r chi.Router) {
	r.Route("/v1/maintenance", func(r chi.Router) {
		r.Post("/sweep", h.Sweep)
		r.Get("/expired", h.Expired)
		r.Post("/reconcile", h.Reconcile)
		r.Post("/reindex", h.Reindex)
	})
}

type sweepResponse struct {
	Checked    int   `json:"checked"`
	Expired    int   `json:"expired"`
	Deleted    int   `json:"deleted"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"durationMs"`
}

// Sweep обрабатывает POST /v1/maintenance/sweep.
// Если очистка уже выполняется — 409 OPERATION_IN_PROGRESS.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, skipped := h.sweeper.RunOnce(r.Context())
	if skipped {
		apierrors.OperationInProgress(w, "Очистка истёкших кейсов уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		Checked:    res.Checked,
		Expired:    res.Expired,
		Deleted:    res.Deleted,
		Failed:     res.Failed,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// Expired обрабатывает GET /v1/maintenance/expired.
func (h *MaintenanceHandler) Expired(w http.ResponseWriter, r *http.Request) {
	records, err := h.sweeper.Pending(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка чтения истёкших записей")
		return
	}
	resp := make([]expirationResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toExpirationResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reconcile обрабатывает POST /v1/maintenance/reconcile?repair=true.
// Без repair только сообщает о расхождениях.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair, err := boolParam(r, "repair")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, skipped, err := h.reconciler.RunOnce(r.Context(), repair)
	if skipped {
		apierrors.OperationInProgress(w, "Сверка уже выполняется")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка сверки")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reindex обрабатывает POST /v1/maintenance/reindex.
func (h *MaintenanceHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	n, skipped, err := h.reconciler.Reindex(r.Context())
	if skipped {
		apierrors.OperationInProgress(w, "Сверка уже выполняется")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка переиндексации")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}
