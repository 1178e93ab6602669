package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/case-store/internal/api/errors"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
)

// validationErr — ошибка разбора запроса, отдаётся как 400.
type validationErr struct {
	msg string
}

func (e *validationErr) Error() string { return e.msg }

// writeError преобразует ошибку сервиса в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500.
func (h *CasesHandler) writeError(w http.ResponseWriter, err error, msg string) {
	writeServiceError(w, h.logger, err, msg)
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	var (
		verr   *validationErr
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		apierrors.ValidationError(w, verr.msg)
	case errors.As(err, &maxErr):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, model.ErrIllegalName):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeIllegalName, err.Error())
	case errors.Is(err, model.ErrInvalidQuery):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeInvalidQuery, err.Error())
	case errors.Is(err, model.ErrFileAlreadyExists):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeAlreadyExists, err.Error())
	case errors.Is(err, model.ErrFileNotImportable):
		apierrors.WriteError(w, http.StatusUnprocessableEntity, apierrors.CodeNotImportable, err.Error())
	case errors.Is(err, model.ErrFileNotFound),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrDirectoryNotFound),
		errors.Is(err, model.ErrDirectoryEmpty):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, filestore.ErrUnsupportedLayout):
		apierrors.WriteError(w, http.StatusNotImplemented, apierrors.CodeUnsupportedLayout, err.Error())
	case errors.Is(err, model.ErrStorageNotInitialized):
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeStorageNotInitialized, err.Error())
	default:
		logger.Error(msg, slog.String("error", err.Error()))
		apierrors.InternalError(w, msg)
	}
}
