package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "github.com/bigkaa/goartstore/case-store/internal/api/errors"
	"github.com/bigkaa/goartstore/case-store/internal/config"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/service"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
)

// --- Моки ---

type mockCases struct {
	mock.Mock
}

func (m *mockCases) Import(ctx context.Context, p service.ImportParams) (*service.ImportResult, error) {
	// Содержимое читается, как это делает сервис.
	_, _ = io.Copy(io.Discard, p.Reader)
	args := m.Called(ctx, p.Name, p.Visibility, p.WithExpiration)
	res, _ := args.Get(0).(*service.ImportResult)
	return res, args.Error(1)
}

func (m *mockCases) Duplicate(ctx context.Context, id uuid.UUID, v model.Visibility, withExpiration bool) (*service.ImportResult, error) {
	args := m.Called(ctx, id, v, withExpiration)
	res, _ := args.Get(0).(*service.ImportResult)
	return res, args.Error(1)
}

func (m *mockCases) Exists(id uuid.UUID) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *mockCases) Name(id uuid.UUID) (string, error) {
	args := m.Called(id)
	return args.String(0), args.Error(1)
}

func (m *mockCases) Format(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockCases) Open(id uuid.UUID) (*os.File, *filestore.CaseFile, error) {
	args := m.Called(id)
	f, _ := args.Get(0).(*os.File)
	cf, _ := args.Get(1).(*filestore.CaseFile)
	return f, cf, args.Error(2)
}

func (m *mockCases) List(v model.Visibility) (map[string]string, error) {
	args := m.Called(v)
	res, _ := args.Get(0).(map[string]string)
	return res, args.Error(1)
}

func (m *mockCases) Metadata(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.CaseMetadata)
	return res, args.Error(1)
}

func (m *mockCases) MetadataOf(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error) {
	args := m.Called(ctx, ids)
	res, _ := args.Get(0).([]*model.CaseMetadata)
	return res, args.Error(1)
}

func (m *mockCases) Search(ctx context.Context, query string) ([]*model.CaseMetadata, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).([]*model.CaseMetadata)
	return res, args.Error(1)
}

func (m *mockCases) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCases) DeleteAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockCases) DisableExpiration(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCases) ExpireIn(ctx context.Context, id uuid.UUID, ttl time.Duration) (time.Time, error) {
	args := m.Called(ctx, id, ttl)
	at, _ := args.Get(0).(time.Time)
	return at, args.Error(1)
}

func (m *mockCases) Expiration(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.ExpirationRecord)
	return res, args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) RunOnce(ctx context.Context) (*service.SweepResult, bool) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*service.SweepResult)
	return res, args.Bool(1)
}

func (m *mockSweeper) Pending(ctx context.Context) ([]*model.ExpirationRecord, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]*model.ExpirationRecord)
	return res, args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) RunOnce(ctx context.Context, repair bool) (*service.ReconcileResult, bool, error) {
	args := m.Called(ctx, repair)
	res, _ := args.Get(0).(*service.ReconcileResult)
	return res, args.Bool(1), args.Error(2)
}

func (m *mockReconciler) Reindex(ctx context.Context) (int, bool, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Bool(1), args.Error(2)
}

type fakeDB struct {
	status, message string
}

func (f fakeDB) CheckReady() (string, string) { return f.status, f.message }

// --- Окружение ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	cases      *mockCases
	sweeper    *mockSweeper
	reconciler *mockReconciler
	router     chi.Router
}

func newTestEnv(t *testing.T, db ReadinessChecker) *testEnv {
	t.Helper()
	env := &testEnv{
		cases:      &mockCases{},
		sweeper:    &mockSweeper{},
		reconciler: &mockReconciler{},
		router:     chi.NewRouter(),
	}
	cfg := &config.Config{
		ServiceID:     "case-store-test",
		StorageLayout: "uuid",
		ExpirationTTL: 24 * time.Hour,
		SweepSchedule: "0 2 * * *",
		MaxFileSize:   1 << 20,
	}
	api := NewAPIHandler(
		NewCasesHandler(env.cases, cfg.MaxFileSize, testLogger()),
		NewMaintenanceHandler(env.sweeper, env.reconciler, testLogger()),
		NewSystemHandler(cfg, []string{"UCTE", "XIIDM"}, []string{"ENTSOE", "CGMES"},
			func() (int64, int64, int64, error) { return 100, 40, 60, nil }),
		NewHealthHandler(t.TempDir(), db),
	)
	api.Register(env.router)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

// --- Импорт ---

func TestImportCase_Created(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	env.cases.On("Import", mock.Anything, "20170322_1844_SN3_FR2.uct", model.VisibilityPrivate, true).
		Return(&service.ImportResult{Metadata: &model.CaseMetadata{ID: id}}, nil)

	body, ct := multipartBody(t, "file", "20170322_1844_SN3_FR2.uct", "##C 2007.05.01\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases?withExpiration=true&visibility=private", body)
	req.Header.Set("Content-Type", ct)

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp idResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	env.cases.AssertExpectations(t)
}

func TestImportCase_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"нет поля file", "", "other"},
		{"некорректный withExpiration", "?withExpiration=maybe", "file"},
		{"некорректный visibility", "?visibility=secret", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, "a.uct", "x")
			req := httptest.NewRequest(http.MethodPost, "/v1/cases"+tt.query, body)
			req.Header.Set("Content-Type", ct)

			rec := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apierrors.CodeValidationError, errorCode(t, rec))
		})
	}
	env.cases.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImportCase_PathInFileName(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, name := range []string{"../test.xiidm", "dir/test.xiidm"} {
		body, ct := multipartBody(t, "file", name, "x")
		req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
		req.Header.Set("Content-Type", ct)

		rec := env.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, apierrors.CodeIllegalName, errorCode(t, rec), name)
	}
	env.cases.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImportCase_NotMultipart(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", bytes.NewBufferString("raw"))
	req.Header.Set("Content-Type", "text/plain")

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportCase_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"недопустимое имя", model.NewStorageError(model.ErrIllegalName, "a", nil), http.StatusBadRequest, apierrors.CodeIllegalName},
		{"не распознан", model.NewStorageError(model.ErrFileNotImportable, "a", nil), http.StatusUnprocessableEntity, apierrors.CodeNotImportable},
		{"уже существует", model.NewStorageError(model.ErrFileAlreadyExists, "a", nil), http.StatusConflict, apierrors.CodeAlreadyExists},
		{"не инициализировано", model.NewStorageError(model.ErrStorageNotInitialized, "/data", nil), http.StatusServiceUnavailable, apierrors.CodeStorageNotInitialized},
		{"прочая ошибка", errors.New("диск сгорел"), http.StatusInternalServerError, apierrors.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.cases.On("Import", mock.Anything, "a.uct", model.Visibility(""), false).Return(nil, tt.err)

			body, ct := multipartBody(t, "file", "a.uct", "x")
			req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
			req.Header.Set("Content-Type", ct)

			rec := env.do(req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestWriteServiceError_TooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	err := model.IOError("big.uct", &http.MaxBytesError{Limit: 10})

	writeServiceError(rec, testLogger(), err, "Ошибка импорта кейса")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apierrors.CodeFileTooLarge, errorCode(t, rec))
}

func TestWriteServiceError_UnsupportedLayout(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, testLogger(), filestore.ErrUnsupportedLayout, "Ошибка")

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, apierrors.CodeUnsupportedLayout, errorCode(t, rec))
}

// --- Чтение ---

func TestDownloadCase(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()

	path := filepath.Join(t.TempDir(), "case.uct")
	require.NoError(t, os.WriteFile(path, []byte("##C 2007.05.01\n"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)

	env.cases.On("Open", id).Return(f, &filestore.CaseFile{ID: id, Name: "case.uct", Path: path}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "##C 2007.05.01\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="case.uct"`)
}

func TestDownloadCase_Range(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()

	path := filepath.Join(t.TempDir(), "case.uct")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	env.cases.On("Open", id).Return(f, &filestore.CaseFile{ID: id, Name: "case.uct"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String(), nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := env.do(req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
}

func TestDownloadCase_BadID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.CodeValidationError, errorCode(t, rec))
}

func TestDownloadCase_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	env.cases.On("Open", id).Return(nil, nil, model.NewStorageError(model.ErrFileNotFound, id.String(), nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.CodeNotFound, errorCode(t, rec))
}

func TestHeadCase(t *testing.T) {
	env := newTestEnv(t, nil)
	present, absent := uuid.New(), uuid.New()
	env.cases.On("Exists", present).Return(true, nil)
	env.cases.On("Exists", absent).Return(false, nil)

	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodHead, "/v1/cases/"+present.String(), nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodHead, "/v1/cases/"+absent.String(), nil)).Code)
}

func TestCaseExistsNameFormat(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	env.cases.On("Exists", id).Return(true, nil)
	env.cases.On("Name", id).Return("case.uct", nil)
	env.cases.On("Format", mock.Anything, id).Return("UCTE", nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String()+"/exists", nil))
	assert.JSONEq(t, "true", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String()+"/name", nil))
	assert.JSONEq(t, `"case.uct"`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String()+"/format", nil))
	assert.JSONEq(t, `"UCTE"`, rec.Body.String())
}

func TestListCases(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cases.On("List", model.VisibilityPrivate).Return(map[string]string{"/data/private/x/a.uct": "a.uct"}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases?visibility=private", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"/data/private/x/a.uct":"a.uct"}`, rec.Body.String())
}

func TestSearchCases(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cases.On("Search", mock.Anything, "format = UCTE").Return(nil, nil)
	env.cases.On("Search", mock.Anything, "((").Return(nil, model.NewStorageError(model.ErrInvalidQuery, "((", nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/search?q=format+%3D+UCTE", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String(), "пустой результат должен быть массивом")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/search?q=%28%28", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.CodeInvalidQuery, errorCode(t, rec))
}

func TestGetMetadataOfCases(t *testing.T) {
	env := newTestEnv(t, nil)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	env.cases.On("MetadataOf", mock.Anything, []uuid.UUID{a, b, c}).Return([]*model.CaseMetadata{}, nil)

	url := "/v1/cases/metadata?ids=" + a.String() + "," + b.String() + "&ids=" + c.String()
	rec := env.do(httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	env.cases.AssertExpectations(t)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/metadata?ids=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Изменение ---

func TestDuplicateCase(t *testing.T) {
	env := newTestEnv(t, nil)
	src, dup := uuid.New(), uuid.New()
	env.cases.On("Duplicate", mock.Anything, src, model.Visibility(""), true).
		Return(&service.ImportResult{Metadata: &model.CaseMetadata{ID: dup}}, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/cases/"+src.String()+"/duplicate?withExpiration=true", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), dup.String())
}

func TestSetExpiration(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	at := time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC)
	env.cases.On("ExpireIn", mock.Anything, id, 48*time.Hour).Return(at, nil)
	env.cases.On("DisableExpiration", mock.Anything, id).Return(nil)

	base := "/v1/cases/" + id.String() + "/expiration"

	rec := env.do(httptest.NewRequest(http.MethodPut, base+"?ttl=48h", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expirationDate":"`+model.FormatDate(at)+`"}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodPut, base+"?disable=true", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, q := range []string{"", "?disable=true&ttl=1h", "?ttl=-1h", "?ttl=soon"} {
		rec = env.do(httptest.NewRequest(http.MethodPut, base+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "запрос %q", q)
	}
}

func TestGetExpiration(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	created := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	env.cases.On("Expiration", mock.Anything, id).Return(&model.ExpirationRecord{ID: id, CreationDate: created}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cases/"+id.String()+"/expiration", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp expirationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.FormatDate(created), resp.CreationDate)
	assert.Nil(t, resp.ExpirationDate)
}

func TestDeleteCase(t *testing.T) {
	env := newTestEnv(t, nil)
	ok, missing := uuid.New(), uuid.New()
	env.cases.On("Delete", mock.Anything, ok).Return(nil)
	env.cases.On("Delete", mock.Anything, missing).Return(model.NewStorageError(model.ErrFileNotFound, missing.String(), nil))

	assert.Equal(t, http.StatusNoContent, env.do(httptest.NewRequest(http.MethodDelete, "/v1/cases/"+ok.String(), nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodDelete, "/v1/cases/"+missing.String(), nil)).Code)
}

func TestDeleteAllCases(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cases.On("DeleteAll", mock.Anything).Return(3, nil).Once()
	env.cases.On("DeleteAll", mock.Anything).Return(2, errors.New("частичный сбой")).Once()

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/v1/cases", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":3}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/v1/cases", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- Обслуживание ---

func TestSweep(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sweeper.On("RunOnce", mock.Anything).Return(&service.SweepResult{Checked: 3, Expired: 1, Deleted: 1}, false).Once()
	env.sweeper.On("RunOnce", mock.Anything).Return(nil, true).Once()

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/maintenance/sweep", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Deleted)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/v1/maintenance/sweep", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierrors.CodeOperationInProgress, errorCode(t, rec))
}

func TestExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	exp := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	env.sweeper.On("Pending", mock.Anything).Return([]*model.ExpirationRecord{
		{ID: id, CreationDate: exp.Add(-time.Hour), ExpirationDate: &exp},
	}, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/maintenance/expired", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []expirationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, id, resp[0].ID)
	require.NotNil(t, resp[0].ExpirationDate)
	assert.Equal(t, model.FormatDate(exp), *resp[0].ExpirationDate)
}

func TestReconcile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reconciler.On("RunOnce", mock.Anything, true).
		Return(&service.ReconcileResult{FilesChecked: 2, Issues: []service.ReconcileIssue{}}, false, nil)
	env.reconciler.On("RunOnce", mock.Anything, false).Return(nil, true, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/maintenance/reconcile?repair=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filesChecked":2`)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/v1/maintenance/reconcile", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reconciler.On("Reindex", mock.Anything).Return(5, false, nil)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/maintenance/reindex", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"indexed":5}`, rec.Body.String())
}

// --- Система ---

func TestInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "case-store", info.Service)
	assert.Equal(t, "uuid", info.Layout)
	assert.Equal(t, []string{"ENTSOE", "CGMES"}, info.Parsers)
	assert.Equal(t, "24h0m0s", info.ExpirationTTL)
	require.NotNil(t, info.Capacity)
	assert.Equal(t, int64(60), info.Capacity.Available)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fakeDB{status: "ok", message: "подключение активно"})
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)

	down := newTestEnv(t, fakeDB{status: statusFail, message: "PostgreSQL недоступен"})
	rec := down.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgresql")
}

func TestHealth_StorageNotWritable(t *testing.T) {
	h := NewHealthHandler(filepath.Join(t.TempDir(), "missing"), nil)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
