package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/lorry-checker/internal/api/middleware"
	"github.com/dvloznov/lorry-checker/internal/domain"
	"github.com/dvloznov/lorry-checker/internal/gcsuploader"
	"github.com/dvloznov/lorry-checker/internal/logger"
	"github.com/dvloznov/lorry-checker/internal/pipeline"
)

// AuditSettings configures an AuditHandler.
type AuditSettings struct {
	Options        pipeline.Options
	MaxUploadBytes int64

	// Bucket and ExportPrefix enable publishing exports to Cloud Storage.
	Bucket       string
	ExportPrefix string
}

// AuditHandler runs the weighbridge audit over uploaded logs.
// It keeps no state between requests.
type AuditHandler struct {
	settings AuditSettings
	storage  gcsuploader.StorageService
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuditHandler creates a new audit handler. storage may be nil, in which case
// the gs:// endpoint and export publishing are unavailable.
func NewAuditHandler(settings AuditSettings, storage gcsuploader.StorageService, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		settings: settings,
		storage:  storage,
		log:      log,
		now:      time.Now,
	}
}

// Audit handles POST /api/audit
// The log is read from the multipart field "file", or from the raw body otherwise.
func (h *AuditHandler) Audit(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	report, ok := h.run(r.Context(), w, data, "upload")
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newAuditResponse(report))
}

// AuditGCS handles POST /api/audit/gcs
func (h *AuditHandler) AuditGCS(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Cloud Storage is not configured")
		return
	}

	var req struct {
		GCSURI string `json:"gcs_uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, _, err := gcsuploader.ParseGCSURI(req.GCSURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := h.requestContext(r)
	data, err := h.storage.FetchFromGCS(ctx, req.GCSURI)
	if err != nil {
		h.log.Error().Err(err).Str("gcs_uri", req.GCSURI).Msg("Failed to fetch log from GCS")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch log from Cloud Storage")
		return
	}

	report, ok := h.run(ctx, w, data, req.GCSURI)
	if !ok {
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newAuditResponse(report))
}

// Export handles POST /api/audit/export
// It answers with the shortlist as a CSV attachment. An empty shortlist is a
// header-only file with X-Record-Count: 0. With ?publish=true the file is also
// written to Cloud Storage and its URI returned in X-Export-URI.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	report, ok := h.run(r.Context(), w, data, "upload")
	if !ok {
		return
	}

	csvBytes, err := pipeline.MarshalCSV(report.Exported)
	if err != nil && !errors.Is(err, pipeline.ErrNoMatches) {
		h.log.Error().Err(err).Str("run_id", report.RunID).Msg("Failed to render export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render export")
		return
	}

	if publish, _ := strconv.ParseBool(r.URL.Query().Get("publish")); publish {
		uri, err := h.publish(h.requestContext(r), report.RunID, csvBytes)
		if err != nil {
			h.log.Error().Err(err).Str("run_id", report.RunID).Msg("Failed to publish export")
			middleware.WriteError(w, http.StatusBadGateway, "Failed to publish export")
			return
		}
		w.Header().Set("X-Export-URI", uri)
	}

	w.Header().Set("Content-Type", pipeline.ExportContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": pipeline.ExportFilename}))
	w.Header().Set("X-Record-Count", strconv.Itoa(len(report.Exported)))
	w.WriteHeader(http.StatusOK)
	w.Write(csvBytes)
}

func (h *AuditHandler) publish(ctx context.Context, runID string, data []byte) (string, error) {
	if h.storage == nil || h.settings.Bucket == "" {
		return "", fmt.Errorf("publish: no export bucket configured")
	}
	object := gcsuploader.ExportObjectName(h.settings.ExportPrefix, runID, pipeline.ExportFilename, h.now())
	if err := h.storage.UploadBytes(ctx, h.settings.Bucket, object, pipeline.ExportContentType, data); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	return gcsuploader.URI(h.settings.Bucket, object), nil
}

// requestContext carries a request-scoped logger down to the storage calls.
func (h *AuditHandler) requestContext(r *http.Request) context.Context {
	log := h.log.With().Str("request_id", middleware.GetRequestID(r.Context())).Logger()
	return logger.WithContext(r.Context(), log)
}

// readUpload returns the uploaded file bytes, writing an error response on failure.
func (h *AuditHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.settings.MaxUploadBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeUploadError(w, err)
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		h.writeUploadError(w, err)
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Uploaded file is empty")
		return nil, false
	}
	return data, true
}

func (h *AuditHandler) writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	middleware.WriteError(w, http.StatusBadRequest, "A CSV file is required in the \"file\" field")
}

// run audits data and logs the outcome. Input errors become 400 responses.
func (h *AuditHandler) run(ctx context.Context, w http.ResponseWriter, data []byte, source string) (*pipeline.Report, bool) {
	start := time.Now()
	log := h.log.With().Str("source", source).Str("request_id", middleware.GetRequestID(ctx)).Logger()

	table, err := pipeline.ReadTable(bytes.NewReader(data))
	if err == nil {
		var report *pipeline.Report
		report, err = pipeline.Run(table, h.settings.Options)
		if err == nil {
			runLog := logger.ForRun(log, report.RunID)
			runLog.Info().
				Int("rows_read", report.RowsRead).
				Int("rows_in_scope", report.RowsInScope).
				Int("exported", len(report.Exported)).
				Int("suspicious", report.SuspiciousCount).
				Dur("duration", time.Since(start)).
				Msg("Audit completed")
			w.Header().Set("X-Run-ID", report.RunID)
			return report, true
		}
	}

	if pipeline.IsInputError(err) {
		log.Warn().Err(err).Msg("Rejected weighbridge log")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	log.Error().Err(err).Msg("Audit failed")
	middleware.WriteError(w, http.StatusInternalServerError, "Audit failed")
	return nil, false
}

// auditResponse is the interactive result: the shortlist and its counts.
type auditResponse struct {
	RunID       string                  `json:"run_id"`
	RowsRead    int                     `json:"rows_read"`
	RowsInScope int                     `json:"rows_in_scope"`
	Matched     int                     `json:"matched"`
	Suspicious  int                     `json:"suspicious"`
	Message     string                  `json:"message"`
	Duration    pipeline.DurationBounds `json:"trip_duration"`
	Records     []recordJSON            `json:"records"`
}

// recordJSON mirrors one line of the CSV export.
type recordJSON struct {
	RCID           string   `json:"RC ID"`
	SACID          string   `json:"SAC ID"`
	DriverName     string   `json:"Driver Name"`
	LorryNumber    string   `json:"Lorry Number"`
	CheckIn        *string  `json:"check_in_dt"`
	CheckOut       *string  `json:"check_out_dt"`
	BTM            *float64 `json:"BTM"`
	AcceptedWeight *float64 `json:"Accepted Weight"`
	domain.Flags
}

func newAuditResponse(report *pipeline.Report) auditResponse {
	records := make([]recordJSON, len(report.Exported))
	for i, row := range report.Exported {
		records[i] = recordJSON{
			RCID:           row.RCID,
			SACID:          row.SACID,
			DriverName:     row.DriverName,
			LorryNumber:    row.LorryNumber,
			CheckIn:        formatTime(row.CheckIn),
			CheckOut:       formatTime(row.CheckOut),
			BTM:            row.BTM,
			AcceptedWeight: row.AcceptedWeight,
			Flags:          row.Flags,
		}
	}

	return auditResponse{
		RunID:       report.RunID,
		RowsRead:    report.RowsRead,
		RowsInScope: report.RowsInScope,
		Matched:     len(report.Exported),
		Suspicious:  report.SuspiciousCount,
		Message:     report.Summary(),
		Duration:    report.Bounds,
		Records:     records,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02 15:04:05")
	return &s
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
