// cases.go — HTTP handlers операций над кейсами.
// Импорт, скачивание, листинг, поиск, метаданные, сроки хранения, удаление.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/case-store/internal/api/errors"
	"github.com/bigkaa/goartstore/case-store/internal/domain/casename"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/service"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
)

// CaseOperations — операции над кейсами. Реализуется *service.CaseService.
type CaseOperations interface {
	Import(ctx context.Context, p service.ImportParams) (*service.ImportResult, error)
	Duplicate(ctx context.Context, id uuid.UUID, visibility model.Visibility, withExpiration bool) (*service.ImportResult, error)
	Exists(id uuid.UUID) (bool, error)
	Name(id uuid.UUID) (string, error)
	Format(ctx context.Context, id uuid.UUID) (string, error)
	Open(id uuid.UUID) (*os.File, *filestore.CaseFile, error)
	List(visibility model.Visibility) (map[string]string, error)
	Metadata(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error)
	MetadataOf(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error)
	Search(ctx context.Context, query string) ([]*model.CaseMetadata, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context) (int, error)
	DisableExpiration(ctx context.Context, id uuid.UUID) error
	ExpireIn(ctx context.Context, id uuid.UUID, ttl time.Duration) (time.Time, error)
	Expiration(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error)
}

// multipartOverhead — запас на заголовки multipart сверх размера файла.
const multipartOverhead = 1 << 20

// CasesHandler — обработчик endpoints /v1/cases.
type CasesHandler struct {
	cases       CaseOperations
	maxFileSize int64
	logger      *slog.Logger
}

// NewCasesHandler создаёт обработчик endpoints кейсов.
func NewCasesHandler(cases CaseOperations, maxFileSize int64, logger *slog.Logger) *CasesHandler {
	return &CasesHandler{
		cases:       cases,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "cases_handler")),
	}
}

// Routes регистрирует маршруты /v1/cases.
func (h *CasesHandler) Routes(r chi.Router) {
	r.Route("/v1/cases", func(r chi.Router) {
		r.Post("/", h.ImportCase)
		r.Get("/", h.ListCases)
		r.Delete("/", h.DeleteAllCases)
		r.Get("/search", h.SearchCases)
		r.Get("/metadata", h.GetMetadataOfCases)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.DownloadCase)
			r.Head("/", h.HeadCase)
			r.Delete("/", h.DeleteCase)
			r.Get("/exists", h.CaseExists)
			r.Get("/name", h.GetCaseName)
			r.Get("/format", h.GetCaseFormat)
			r.Get("/metadata", h.GetCaseMetadata)
			r.Post("/duplicate", h.DuplicateCase)
			r.Get("/expiration", h.GetExpiration)
			r.Put("/expiration", h.SetExpiration)
		})
	})
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

// ImportCase обрабатывает POST /v1/cases.
// Multipart form: file (обязательно). Query: withExpiration, visibility.
// Файл читается потоком, без буферизации формы целиком.
func (h *CasesHandler) ImportCase(w http.ResponseWriter, r *http.Request) {
	withExpiration, err := boolParam(r, "withExpiration")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	visibility, err := visibilityParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	part, err := filePart(r)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения multipart")
		return
	}
	defer part.Close()

	name := rawFileName(part)
	if err := casename.Validate(name); err != nil {
		h.writeError(w, err, "Недопустимое имя файла")
		return
	}

	res, err := h.cases.Import(r.Context(), service.ImportParams{
		Name:           name,
		Reader:         part,
		Visibility:     visibility,
		WithExpiration: withExpiration,
	})
	if err != nil {
		h.writeError(w, err, "Ошибка импорта кейса")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: res.Metadata.ID})
}

// filePart находит часть multipart с именем file.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &validationErr{msg: fmt.Sprintf("ожидается multipart/form-data: %v", err)}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, &validationErr{msg: "Поле 'file' обязательно"}
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && rawFileName(part) != "" {
			return part, nil
		}
		part.Close()
	}
}

// rawFileName возвращает filename из Content-Disposition без отрезания пути.
func rawFileName(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}

// DownloadCase обрабатывает GET /v1/cases/{id}.
// Поддерживает Range requests через http.ServeContent.
func (h *CasesHandler) DownloadCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	f, cf, err := h.cases.Open(id)
	if err != nil {
		h.writeError(w, err, "Ошибка открытия кейса")
		return
	}
	defer f.Close()

	var modTime time.Time
	if info, statErr := f.Stat(); statErr == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cf.Name))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, cf.Name, modTime, f)
}

// HeadCase обрабатывает HEAD /v1/cases/{id}: 200, если файл есть, иначе 404.
func (h *CasesHandler) HeadCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	found, err := h.cases.Exists(id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// CaseExists обрабатывает GET /v1/cases/{id}/exists.
func (h *CasesHandler) CaseExists(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	found, err := h.cases.Exists(id)
	if err != nil {
		h.writeError(w, err, "Ошибка проверки кейса")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// GetCaseName обрабатывает GET /v1/cases/{id}/name.
func (h *CasesHandler) GetCaseName(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	name, err := h.cases.Name(id)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения имени кейса")
		return
	}
	writeJSON(w, http.StatusOK, name)
}

// GetCaseFormat обрабатывает GET /v1/cases/{id}/format.
func (h *CasesHandler) GetCaseFormat(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	format, err := h.cases.Format(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения формата кейса")
		return
	}
	writeJSON(w, http.StatusOK, format)
}

// GetCaseMetadata обрабатывает GET /v1/cases/{id}/metadata.
func (h *CasesHandler) GetCaseMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	meta, err := h.cases.Metadata(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения метаданных")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// ListCases обрабатывает GET /v1/cases: путь → имя файла.
func (h *CasesHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	visibility, err := visibilityParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	list, err := h.cases.List(visibility)
	if err != nil {
		h.writeError(w, err, "Ошибка листинга кейсов")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SearchCases обрабатывает GET /v1/cases/search?q=...
func (h *CasesHandler) SearchCases(w http.ResponseWriter, r *http.Request) {
	found, err := h.cases.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err, "Ошибка поиска")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(found))
}

// GetMetadataOfCases обрабатывает GET /v1/cases/metadata?ids=a,b.
// Параметр ids может повторяться.
func (h *CasesHandler) GetMetadataOfCases(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	for _, raw := range r.URL.Query()["ids"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := uuid.Parse(s)
			if err != nil {
				apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор кейса: %q", s))
				return
			}
			ids = append(ids, id)
		}
	}

	list, err := h.cases.MetadataOf(r.Context(), ids)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения метаданных")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// DuplicateCase обрабатывает POST /v1/cases/{id}/duplicate.
// Query: withExpiration, visibility (по умолчанию — раздел исходного кейса).
func (h *CasesHandler) DuplicateCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	withExpiration, err := boolParam(r, "withExpiration")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	visibility, err := visibilityParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.cases.Duplicate(r.Context(), id, visibility, withExpiration)
	if err != nil {
		h.writeError(w, err, "Ошибка копирования кейса")
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: res.Metadata.ID})
}

type expirationResponse struct {
	ID             uuid.UUID `json:"id"`
	CreationDate   string    `json:"creationDate"`
	ExpirationDate *string   `json:"expirationDate"`
}

func toExpirationResponse(rec *model.ExpirationRecord) expirationResponse {
	resp := expirationResponse{ID: rec.ID, CreationDate: model.FormatDate(rec.CreationDate)}
	if rec.ExpirationDate != nil {
		s := model.FormatDate(*rec.ExpirationDate)
		resp.ExpirationDate = &s
	}
	return resp
}

// GetExpiration обрабатывает GET /v1/cases/{id}/expiration.
func (h *CasesHandler) GetExpiration(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	rec, err := h.cases.Expiration(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Ошибка чтения срока хранения")
		return
	}
	writeJSON(w, http.StatusOK, toExpirationResponse(rec))
}

// SetExpiration обрабатывает PUT /v1/cases/{id}/expiration.
// Query: disable=true снимает срок, ttl=<duration> устанавливает now+ttl.
func (h *CasesHandler) SetExpiration(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	disable, err := boolParam(r, "disable")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	rawTTL := r.URL.Query().Get("ttl")

	switch {
	case disable && rawTTL != "":
		apierrors.ValidationError(w, "Параметры disable и ttl взаимоисключающие")
		return
	case disable:
		if err := h.cases.DisableExpiration(r.Context(), id); err != nil {
			h.writeError(w, err, "Ошибка снятия срока хранения")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case rawTTL != "":
		ttl, err := time.ParseDuration(rawTTL)
		if err != nil || ttl <= 0 {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный ttl: %q", rawTTL))
			return
		}
		at, err := h.cases.ExpireIn(r.Context(), id, ttl)
		if err != nil {
			h.writeError(w, err, "Ошибка установки срока хранения")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"expirationDate": model.FormatDate(at)})
	default:
		apierrors.ValidationError(w, "Требуется параметр disable=true или ttl")
	}
}

// DeleteCase обрабатывает DELETE /v1/cases/{id}.
func (h *CasesHandler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	if err := h.cases.Delete(r.Context(), id); err != nil {
		h.writeError(w, err, "Ошибка удаления кейса")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllCases обрабатывает DELETE /v1/cases.
// Частичный успех отдаётся как 500 с количеством удалённых в сообщении.
func (h *CasesHandler) DeleteAllCases(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.cases.DeleteAll(r.Context())
	if err != nil {
		h.logger.Error("Ошибка удаления всех кейсов",
			slog.Int("deleted", deleted),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fmt.Sprintf("Удалено %d кейсов, часть удалить не удалось", deleted))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// --- Вспомогательные функции ---

func caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор кейса: %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("параметр %s должен быть true или false: %q", name, raw)
	}
	return v, nil
}

func visibilityParam(r *http.Request) (model.Visibility, error) {
	v := model.Visibility(r.URL.Query().Get("visibility"))
	if v != "" && !v.Valid() {
		return "", fmt.Errorf("параметр visibility должен быть public или private: %q", v)
	}
	return v, nil
}

func nonNil(list []*model.CaseMetadata) []*model.CaseMetadata {
	if list == nil {
		return []*model.CaseMetadata{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
