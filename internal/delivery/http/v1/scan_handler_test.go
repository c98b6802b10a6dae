package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"file-scan-backend/config"
	"file-scan-backend/internal/domain"
	"file-scan-backend/internal/usecase"
	"file-scan-backend/pkg/apperror"
	"file-scan-backend/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validID = "3f1c2b7e-9a4d-4c1e-8b2a-5d6e7f809a1b"

type MockScanUsecase struct {
	mock.Mock
}

func (m *MockScanUsecase) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.ScanRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanRecord), args.Error(1)
}

func (m *MockScanUsecase) SubmitAsync(ctx context.Context, req domain.SubmitRequest) (*domain.ScanStatus, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanStatus), args.Error(1)
}

func (m *MockScanUsecase) GetStatus(ctx context.Context, scanID string) (*domain.ScanStatus, error) {
	args := m.Called(ctx, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanStatus), args.Error(1)
}

func (m *MockScanUsecase) GetResult(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	args := m.Called(ctx, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanRecord), args.Error(1)
}

func (m *MockScanUsecase) ListHistory(ctx context.Context, limit int) ([]domain.ScanHistoryItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScanHistoryItem), args.Error(1)
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     map[string]any  `json:"error"`
	RequestID string          `json:"request_id"`
}

func newTestRouter(t *testing.T, uc domain.ScanUsecase, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterDeps{
		ScanUC:         uc,
		HealthUC:       usecase.NewHealthUsecase(usecase.HealthDependencies{}),
		UploadLimiter:  security.NewUploadLimiter(nil, 0),
		MaxUploadBytes: maxUpload,
		Config: &config.Config{
			UploadDir:                t.TempDir(),
			RateLimitGlobalThreshold: 1000,
			RateLimitWindowSeconds:   60,
		},
	})
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestSubmitScan_Sync(t *testing.T) {
	uc := new(MockScanUsecase)
	var storedPath string
	uc.On("Submit", mock.Anything, mock.MatchedBy(func(req domain.SubmitRequest) bool {
		storedPath = req.FilePath
		data, err := os.ReadFile(req.FilePath)
		return err == nil && string(data) == "console.log(1)" &&
			req.OriginalFileName == "app.js" && req.SizeBytes == 14 && req.RemoveOnComplete
	})).Return(&domain.ScanRecord{ScanID: validID, ThreatLevel: domain.ThreatNone, Completed: true}, nil)

	r := newTestRouter(t, uc, 1024)
	body, ct := multipartBody(t, "app.js", []byte("console.log(1)"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	req.Header.Set("Content-Type", ct)

	w, env := do(t, r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, w.Header().Get("X-Request-ID"))

	var record domain.ScanRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, validID, record.ScanID)
	assert.NotEmpty(t, storedPath)
	uc.AssertExpectations(t)
}

func TestSubmitScan_EmptyFile(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("Submit", mock.Anything, mock.MatchedBy(func(req domain.SubmitRequest) bool {
		return req.OriginalFileName == "empty.js" && req.SizeBytes == 0
	})).Return(&domain.ScanRecord{ScanID: validID, ThreatLevel: domain.ThreatNone, Completed: true}, nil)

	r := newTestRouter(t, uc, 1024)
	body, ct := multipartBody(t, "empty.js", []byte{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	req.Header.Set("Content-Type", ct)

	w, env := do(t, r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	uc.AssertExpectations(t)
}

func TestSubmitScan_Async(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("SubmitAsync", mock.Anything, mock.Anything).
		Return(&domain.ScanStatus{ScanID: validID, Status: domain.ScanStatePending}, nil)

	r := newTestRouter(t, uc, 1024)
	body, ct := multipartBody(t, "a.txt", []byte("x"), map[string]string{"mode": "async"})
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
	req.Header.Set("Content-Type", ct)

	w, env := do(t, r, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, string(env.Data), `"status":"pending"`)
	uc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSubmitScan_Rejections(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		uc := new(MockScanUsecase)
		r := newTestRouter(t, uc, 8)
		body, ct := multipartBody(t, "big.bin", bytes.Repeat([]byte("a"), 64), nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
		req.Header.Set("Content-Type", ct)

		w, env := do(t, r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, string(apperror.KindPayloadTooLarge), env.Error["kind"])
		uc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("missing file", func(t *testing.T) {
		r := newTestRouter(t, new(MockScanUsecase), 1024)
		body, ct := multipartBody(t, "", nil, map[string]string{"mode": "sync"})
		req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
		req.Header.Set("Content-Type", ct)

		w, env := do(t, r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, env.Success)
	})

	t.Run("bad mode", func(t *testing.T) {
		r := newTestRouter(t, new(MockScanUsecase), 1024)
		body, ct := multipartBody(t, "a.txt", []byte("x"), map[string]string{"mode": "later"})
		req := httptest.NewRequest(http.MethodPost, "/v1/scans", body)
		req.Header.Set("Content-Type", ct)

		w, _ := do(t, r, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestGetResult(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("GetResult", mock.Anything, validID).Return(&domain.ScanRecord{ScanID: validID, Completed: true}, nil)
	r := newTestRouter(t, uc, 1024)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/"+validID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), validID)
}

func TestGetResult_NotFound(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("GetResult", mock.Anything, validID).Return(nil, apperror.NotFound("Scan result not found"))
	r := newTestRouter(t, uc, 1024)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/"+validID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperror.KindNotFound), env.Error["kind"])

	// malformed ids never reach the usecase
	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	uc.AssertNumberOfCalls(t, "GetResult", 1)
}

func TestGetStatus(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("GetStatus", mock.Anything, validID).
		Return(&domain.ScanStatus{ScanID: validID, Status: domain.ScanStateProcessing, Progress: 30, Stage: domain.StageAVScanning}, nil)
	r := newTestRouter(t, uc, 1024)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/"+validID+"/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status domain.ScanStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 30, status.Progress)
	assert.Equal(t, domain.StageAVScanning, status.Stage)
}

func TestListHistory(t *testing.T) {
	uc := new(MockScanUsecase)
	uc.On("ListHistory", mock.Anything, 5).Return([]domain.ScanHistoryItem{{ID: validID}}, nil)
	uc.On("ListHistory", mock.Anything, 0).Return([]domain.ScanHistoryItem{}, nil)
	r := newTestRouter(t, uc, 1024)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/history?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), validID)

	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/history", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/v1/scans/history?limit=abc", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	uc.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, new(MockScanUsecase), 1024)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
