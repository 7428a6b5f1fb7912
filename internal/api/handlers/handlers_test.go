package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/lorry-checker/internal/logger"
	"github.com/dvloznov/lorry-checker/internal/pipeline"
)

const weighbridgeLog = `RC ID,SAC ID,Driver Name,Lorry Number,WB In,check In,check In Time,check Out,check Out Time,BTM,Accepted Weight
RC1,S1,Ali,A,WB01,12/03/2024,08:00:00,12/03/2024,08:30:00,1000,500
RC2,S2,Bala,B,WB01,12/03/2024,08:00:30,12/03/2024,08:30:30,1000,700
RC3,S3,Ali,A,WB01,12/03/2024,09:00:00,12/03/2024,09:30:00,3000,500
RCX,SX,Xavier,A,WB02,12/03/2024,08:00:10,13/03/2024,08:00:00,99999,500
RC4,S4,Ali,A,WB01,12/03/2024,10:00:00,12/03/2024,12:00:00,1000,510
RC5,S5,Bala,B,WB01,12/03/2024,11:00:00,12/03/2024,11:25:00,1100,710
RC6,S6,Ali,A,WB01,12/03/2024,13:00:00,12/03/2024,13:30:00,3000,520
`

// MockStorageService is a mock implementation of gcsuploader.StorageService.
type MockStorageService struct {
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)

	uploads map[string][]byte
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, gcsURI)
	}
	return []byte(weighbridgeLog), nil
}

func (m *MockStorageService) UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
	}
	m.uploads["gs://"+bucketName+"/"+objectName] = data
	return nil
}

func newTestRouter(storage *MockStorageService) http.Handler {
	settings := AuditSettings{
		Options:        pipeline.DefaultOptions(),
		MaxUploadBytes: 1 << 20,
		Bucket:         "audit-exports",
		ExportPrefix:   "exports",
	}
	var h *AuditHandler
	if storage == nil {
		h = NewAuditHandler(settings, nil, zerolog.Nop())
	} else {
		h = NewAuditHandler(settings, storage, zerolog.Nop())
	}
	h.now = func() time.Time { return time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC) }
	return NewRouter(h)
}

func multipartBody(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, "log.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeAudit(t *testing.T, rec *httptest.ResponseRecorder) auditResponse {
	t.Helper()
	var resp auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAudit_Multipart(t *testing.T) {
	body, contentType := multipartBody(t, "file", weighbridgeLog)
	req := httptest.NewRequest(http.MethodPost, "/api/audit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAudit(t, rec)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 7, resp.RowsRead)
	assert.Equal(t, 6, resp.RowsInScope)
	assert.Equal(t, 5, resp.Matched)
	assert.Equal(t, 6, resp.Suspicious)
	assert.Equal(t, "5 suspicious records found.", resp.Message)
	require.Len(t, resp.Records, 5)
	for _, r := range resp.Records {
		assert.NotEqual(t, "RCX", r.RCID)
	}
	assert.Equal(t, "RC1", resp.Records[0].RCID)
	require.NotNil(t, resp.Records[0].CheckIn)
	assert.Equal(t, "2024-03-12 08:00:00", *resp.Records[0].CheckIn)
}

func TestAudit_RawBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(weighbridgeLog))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeAudit(t, rec).Matched)
}

func TestAudit_NonFiniteNumbers(t *testing.T) {
	body := `RC ID,SAC ID,Driver Name,Lorry Number,WB In,check In,check In Time,check Out,check Out Time,BTM,Accepted Weight
RC1,S1,Ali,A,WB01,12/03/2024,08:00:00,12/03/2024,08:30:00,Inf,500
RC2,S2,Ali,A,WB01,12/03/2024,09:00:00,12/03/2024,09:30:00,-Infinity,600
`
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAudit(t, rec)
	require.Len(t, resp.Records, 2)
	for _, r := range resp.Records {
		assert.Nil(t, r.BTM, "record %s", r.RCID)
	}
	assert.Equal(t, resp.RunID, rec.Header().Get("X-Run-ID"))
}

func TestAudit_NoMatches(t *testing.T) {
	log := strings.SplitN(weighbridgeLog, "\n", 2)[0] + "\nRC1,S,D,A,WB02,12/03/2024,08:00,12/03/2024,08:30,1,1\n"
	req := httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(log))
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAudit(t, rec)
	assert.Equal(t, 0, resp.Matched)
	assert.Equal(t, "No records matched the suspicious filter criteria.", resp.Message)
	assert.Empty(t, resp.Records)
}

func TestAudit_MissingColumns(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader("RC ID,BTM\nRC1,1000\n"))
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required columns")
}

func TestAudit_EmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader("  ")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAudit_TooLarge(t *testing.T) {
	big := weighbridgeLog + strings.Repeat("RC9,S,D,A,WB01,12/03/2024,08:00,12/03/2024,08:30,1,1\n", 30000)
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAudit_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExport(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/audit/export", strings.NewReader(weighbridgeLog))
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=suspicious_lorry_transactions.csv`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "5", rec.Header().Get("X-Record-Count"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, pipeline.ExportColumns, records[0])
}

func TestExport_NoMatches(t *testing.T) {
	log := strings.SplitN(weighbridgeLog, "\n", 2)[0] + "\n"
	req := httptest.NewRequest(http.MethodPost, "/api/audit/export", strings.NewReader(log))
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Record-Count"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}

func TestExport_Publish(t *testing.T) {
	storage := &MockStorageService{}
	req := httptest.NewRequest(http.MethodPost, "/api/audit/export?publish=true", strings.NewReader(weighbridgeLog))
	rec := httptest.NewRecorder()

	newTestRouter(storage).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uri := rec.Header().Get("X-Export-URI")
	runID := rec.Header().Get("X-Run-ID")
	assert.Equal(t, "gs://audit-exports/exports/2024/03/12/"+runID+"/suspicious_lorry_transactions.csv", uri)
	assert.Equal(t, rec.Body.Bytes(), storage.uploads[uri])
}

func TestExport_PublishWithoutStorage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/audit/export?publish=true", strings.NewReader(weighbridgeLog))
	rec := httptest.NewRecorder()

	newTestRouter(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuditGCS(t *testing.T) {
	var gotURI string
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			gotURI = gcsURI
			return []byte(weighbridgeLog), nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/audit/gcs", strings.NewReader(`{"gcs_uri":"gs://logs/wb01.csv"}`))
	rec := httptest.NewRecorder()

	newTestRouter(storage).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gs://logs/wb01.csv", gotURI)
	assert.Equal(t, 5, decodeAudit(t, rec).Matched)
}

func TestAuditGCS_RequestLogger(t *testing.T) {
	var buf bytes.Buffer
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			log := logger.FromContext(ctx)
			log.Info().Msg("fetching")
			return []byte(weighbridgeLog), nil
		},
	}
	settings := AuditSettings{Options: pipeline.DefaultOptions(), MaxUploadBytes: 1 << 20}
	h := NewAuditHandler(settings, storage, zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodPost, "/api/audit/gcs", strings.NewReader(`{"gcs_uri":"gs://logs/wb01.csv"}`))
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, buf.String(), `"message":"fetching"`)
	assert.Contains(t, buf.String(), `"request_id"`)
}

func TestAuditGCS_Errors(t *testing.T) {
	failing := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			return nil, errors.New("permission denied")
		},
	}

	tests := []struct {
		name     string
		storage  *MockStorageService
		body     string
		wantCode int
	}{
		{"no storage", nil, `{"gcs_uri":"gs://logs/wb01.csv"}`, http.StatusServiceUnavailable},
		{"bad json", &MockStorageService{}, `{`, http.StatusBadRequest},
		{"bad uri", &MockStorageService{}, `{"gcs_uri":"logs/wb01.csv"}`, http.StatusBadRequest},
		{"fetch fails", failing, `{"gcs_uri":"gs://logs/wb01.csv"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(tt.storage).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/audit/gcs", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
