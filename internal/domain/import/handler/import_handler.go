package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
	importservice "github.com/FACorreiaa/smb-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/smb-ledger/pkg/apperr"
	"github.com/FACorreiaa/smb-ledger/pkg/interceptors"
)

const (
	defaultMaxUpload = 10 << 20
	defaultJobLimit  = 20
	maxJobLimit      = 100
	// multipart parts beyond this are spooled to disk
	multipartMemory = 8 << 20
)

// ImportHandler serves the import API
type ImportHandler struct {
	importSvc *importservice.ImportService
	logger    *slog.Logger
	maxUpload int64
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc *importservice.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
		maxUpload: defaultMaxUpload,
	}
}

// WithMaxUpload caps the size of uploaded files
func (h *ImportHandler) WithMaxUpload(n int64) *ImportHandler {
	if n > 0 {
		h.maxUpload = n
	}
	return h
}

// Routes mounts the import endpoints on r.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/", h.ImportRows)
	r.Post("/file", h.ImportFile)
	r.Post("/analyze", h.Analyze)
	r.Put("/mappings", h.SaveMapping)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/jobs/{id}/errors.csv", h.ExportErrors)
	r.Get("/jobs/{id}/file", h.DownloadFile)
}

type importRequest struct {
	Type      string       `json:"type"`
	CompanyID string       `json:"companyId"`
	Data      []rows.Row   `json:"data"`
	Mappings  rows.Mapping `json:"mappings"`
	FileName  string       `json:"fileName"`
}

type importResponse struct {
	Success  bool      `json:"success"`
	JobID    uuid.UUID `json:"jobId"`
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Errors   []string  `json:"errors"`
	Message  string    `json:"message"`
	Total    string    `json:"total,omitempty"`
}

// ImportRows handles POST /api/import with rows already parsed by the client.
func (h *ImportHandler) ImportRows(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req importRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.Data) == 0 {
		h.fail(w, r, importservice.ErrNoData)
		return
	}
	companyID, err := parseCompanyID(req.CompanyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityType, err := importservice.ParseEntityType(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.importSvc.ImportRows(r.Context(), importservice.Request{
		Type:      entityType,
		CompanyID: companyID,
		UserID:    userID,
		Rows:      req.Data,
		Mappings:  req.Mappings,
		Headers:   req.Data[0].Columns,
		FileName:  req.FileName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newImportResponse(result))
}

// ImportFile handles POST /api/import/file, a multipart upload with the
// spreadsheet in the "file" part.
func (h *ImportHandler) ImportFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	up, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if up.data == nil {
		h.fail(w, r, apperr.BadRequest("file is required"))
		return
	}

	result, err := h.importSvc.ImportFile(r.Context(), importservice.FileRequest{
		Type:        up.entityType,
		CompanyID:   up.companyID,
		UserID:      userID,
		FileName:    up.fileName,
		ContentType: up.contentType,
		Data:        up.data,
		Mappings:    up.mappings,
		Options:     up.options,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newImportResponse(result))
}

type analyzeRequest struct {
	Type      string   `json:"type"`
	CompanyID string   `json:"companyId"`
	Headers   []string `json:"headers"`
}

type fieldHint struct {
	Header   string `json:"header"`
	Field    string `json:"field"`
	Distance int    `json:"distance"`
}

type analyzeResponse struct {
	Format       string            `json:"format,omitempty"`
	HeaderRow    int               `json:"headerRow,omitempty"`
	Headers      []string          `json:"headers"`
	Fingerprint  string            `json:"fingerprint"`
	RowCount     int               `json:"rowCount"`
	SampleRows   []rows.Row        `json:"sampleRows"`
	Suggestions  map[string]string `json:"suggestions"`
	Hints        []fieldHint       `json:"hints"`
	SavedMapping *mappingResponse  `json:"savedMapping,omitempty"`
}

// Analyze handles POST /api/import/analyze. It accepts either a multipart
// upload or a JSON body with just the headers.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	req := importservice.AnalyzeRequest{UserID: userID}
	if isMultipart(r) {
		up, err := h.readUpload(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req.Type, req.CompanyID = up.entityType, up.companyID
		req.FileName, req.Data, req.Options = up.fileName, up.data, up.options
	} else {
		var body analyzeRequest
		if err := h.decodeJSON(w, r, &body); err != nil {
			h.fail(w, r, err)
			return
		}
		companyID, err := parseCompanyID(body.CompanyID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		entityType, err := importservice.ParseEntityType(body.Type)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req.Type, req.CompanyID, req.Headers = entityType, companyID, body.Headers
	}

	a, err := h.importSvc.Analyze(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := analyzeResponse{
		Format:      string(a.Format),
		HeaderRow:   a.HeaderRow,
		Headers:     a.Headers,
		Fingerprint: a.Fingerprint,
		RowCount:    a.RowCount,
		SampleRows:  a.SampleRows,
		Suggestions: a.Suggestions,
		Hints:       make([]fieldHint, 0, len(a.Hints)),
	}
	for _, hint := range a.Hints {
		resp.Hints = append(resp.Hints, fieldHint(hint))
	}
	if a.SavedMapping != nil {
		resp.SavedMapping = newMappingResponse(a.SavedMapping)
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveMappingRequest struct {
	Type        string       `json:"type"`
	CompanyID   string       `json:"companyId"`
	Headers     []string     `json:"headers"`
	Fingerprint string       `json:"fingerprint"`
	Mappings    rows.Mapping `json:"mappings"`
}

type mappingResponse struct {
	ID          uuid.UUID         `json:"id"`
	EntityType  string            `json:"type"`
	Fingerprint string            `json:"fingerprint"`
	Headers     []string          `json:"headers"`
	Mappings    map[string]string `json:"mappings"`
	UseCount    int               `json:"useCount"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func newMappingResponse(m *repository.MappingTemplate) *mappingResponse {
	return &mappingResponse{
		ID:          m.ID,
		EntityType:  m.EntityType,
		Fingerprint: m.Fingerprint,
		Headers:     m.Headers,
		Mappings:    m.Mappings,
		UseCount:    m.UseCount,
		UpdatedAt:   m.UpdatedAt,
	}
}

// SaveMapping handles PUT /api/import/mappings
func (h *ImportHandler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var body saveMappingRequest
	if err := h.decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	companyID, err := parseCompanyID(body.CompanyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entityType, err := importservice.ParseEntityType(body.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tpl, err := h.importSvc.SaveMapping(r.Context(), importservice.SaveMappingRequest{
		Type:        entityType,
		CompanyID:   companyID,
		UserID:      userID,
		Headers:     body.Headers,
		Fingerprint: body.Fingerprint,
		Mappings:    body.Mappings,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMappingResponse(tpl))
}

type jobResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	FileName     *string    `json:"fileName,omitempty"`
	HasFile      bool       `json:"hasFile"`
	RowsTotal    int        `json:"rowsTotal"`
	RowsImported int        `json:"rowsImported"`
	RowsSkipped  int        `json:"rowsSkipped"`
	RowsFailed   int        `json:"rowsFailed"`
	Errors       []string   `json:"errors"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

func newJobResponse(j *repository.ImportJob) jobResponse {
	errs := j.Errors
	if errs == nil {
		errs = []string{}
	}
	return jobResponse{
		ID:           j.ID,
		Type:         j.EntityType,
		Status:       string(j.Status),
		FileName:     j.FileName,
		HasFile:      j.FileID != nil,
		RowsTotal:    j.RowsTotal,
		RowsImported: j.RowsImported,
		RowsSkipped:  j.RowsSkipped,
		RowsFailed:   j.RowsFailed,
		Errors:       errs,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
	}
}

// ListJobs handles GET /api/import/jobs?companyId=&limit=
func (h *ImportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	companyID, err := parseCompanyID(r.URL.Query().Get("companyId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	limit := defaultJobLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.fail(w, r, apperr.BadRequest("invalid limit").WithDetails(s))
			return
		}
		limit = min(n, maxJobLimit)
	}

	jobs, err := h.importSvc.ListJobs(r.Context(), companyID, userID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// GetJob handles GET /api/import/jobs/{id}
func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, companyID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}
	job, err := h.importSvc.GetJob(r.Context(), companyID, userID, jobID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// ExportErrors handles GET /api/import/jobs/{id}/errors.csv
func (h *ImportHandler) ExportErrors(w http.ResponseWriter, r *http.Request) {
	userID, companyID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	var buf strings.Builder
	if err := h.importSvc.ExportJobErrors(r.Context(), companyID, userID, jobID, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import-%s-errores.csv"`, jobID))
	_, _ = io.WriteString(w, buf.String())
}

// DownloadFile handles GET /api/import/jobs/{id}/file, the archived upload.
func (h *ImportHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, companyID, jobID, ok := h.jobParams(w, r)
	if !ok {
		return
	}

	rc, info, err := h.importSvc.OpenJobFile(r.Context(), companyID, userID, jobID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "failed to stream import file",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err))
	}
}

// Health handles GET /healthz
func (h *ImportHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.importSvc.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newImportResponse(result *importservice.Result) importResponse {
	resp := importResponse{
		Success:  true,
		JobID:    result.JobID,
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Errors:   result.ErrorMessages(),
		Message:  result.Message,
	}
	if result.Total != nil && !result.Total.IsZero() {
		resp.Total = result.Total.Display()
	}
	return resp
}

// userID reads the authenticated user set by the auth middleware.
func (h *ImportHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok || raw == "" {
		h.fail(w, r, apperr.Unauthorized("authentication required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.fail(w, r, apperr.Unauthorized("invalid token subject"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ImportHandler) jobParams(w http.ResponseWriter, r *http.Request) (userID, companyID, jobID uuid.UUID, ok bool) {
	if userID, ok = h.userID(w, r); !ok {
		return
	}
	var err error
	if companyID, err = parseCompanyID(r.URL.Query().Get("companyId")); err != nil {
		h.fail(w, r, err)
		return userID, companyID, jobID, false
	}
	if jobID, err = uuid.Parse(chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, apperr.BadRequest("invalid job id"))
		return userID, companyID, jobID, false
	}
	return userID, companyID, jobID, true
}

// parseCompanyID leaves an empty id to the service, which reports it as
// missing.
func parseCompanyID(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid companyId").WithDetails(s)
	}
	return id, nil
}

// fail maps err to a status and writes the error body. Anything unexpected
// is logged and answered as 500.
func (h *ImportHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "import request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	apperr.Write(w, appErr)
}

func toAppError(err error) *apperr.AppError {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, importservice.ErrNoData):
		return apperr.BadRequest("no data to import").WithDetails(err.Error())
	case errors.Is(err, importservice.ErrCompanyRequired):
		return apperr.BadRequest("companyId is required")
	case errors.Is(err, importservice.ErrUnsupportedType):
		return apperr.BadRequest("unsupported import type").WithDetails(err.Error())
	case errors.Is(err, importservice.ErrTooManyRows),
		errors.Is(err, importservice.ErrInvalidFile),
		errors.Is(err, importservice.ErrNoHeaders),
		errors.Is(err, importservice.ErrNoMappings):
		return apperr.BadRequest("invalid import request").WithDetails(err.Error())
	case errors.Is(err, importservice.ErrCompanyNotFound):
		return apperr.NotFound("company not found")
	case errors.Is(err, importservice.ErrJobNotFound):
		return apperr.NotFound("import job not found")
	case errors.Is(err, importservice.ErrNoFile):
		return apperr.NotFound("import job has no archived file")
	case errors.Is(err, importservice.ErrNoFileStore):
		return apperr.NotImplemented("file archive is disabled")
	case errors.Is(err, importservice.ErrAborted):
		return apperr.Internal(err).WithDetails("import aborted; rows saved before the failure were kept")
	default:
		return apperr.Internal(err).WithDetails("unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// upload is a parsed multipart import form.
type upload struct {
	entityType  importservice.EntityType
	companyID   uuid.UUID
	fileName    string
	contentType string
	data        []byte
	mappings    rows.Mapping
	options     parser.Options
}

// decodeJSON reads a JSON body capped at the upload limit.
func (h *ImportHandler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.TooLarge(h.maxUpload)
		}
		return apperr.BadRequest("invalid request body").WithDetails(err.Error())
	}
	return nil
}

// readUpload parses the multipart form: file, type, companyId and the
// optional mappings (JSON), headerRow, sheet and delimiter fields.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.TooLarge(h.maxUpload)
		}
		return nil, apperr.BadRequest("invalid multipart form").WithDetails(err.Error())
	}

	up := &upload{}
	var err error
	if up.companyID, err = parseCompanyID(r.FormValue("companyId")); err != nil {
		return nil, err
	}
	if up.entityType, err = importservice.ParseEntityType(r.FormValue("type")); err != nil {
		return nil, err
	}
	if raw := r.FormValue("mappings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &up.mappings); err != nil {
			return nil, apperr.BadRequest("invalid mappings").WithDetails(err.Error())
		}
	}
	if raw := r.FormValue("headerRow"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, apperr.BadRequest("invalid headerRow").WithDetails(raw)
		}
		up.options.HeaderRow = n
	}
	up.options.Sheet = r.FormValue("sheet")
	if raw := r.FormValue("delimiter"); raw != "" {
		if raw == `\t` || raw == "tab" {
			raw = "\t"
		}
		d := []rune(raw)
		if len(d) != 1 {
			return nil, apperr.BadRequest("delimiter must be a single character").WithDetails(raw)
		}
		up.options.Delimiter = d[0]
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return up, nil
	}
	if err != nil {
		return nil, apperr.BadRequest("invalid file part").WithDetails(err.Error())
	}
	defer file.Close()

	if up.data, err = io.ReadAll(file); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	up.fileName = header.Filename
	up.contentType = header.Header.Get("Content-Type")
	return up, nil
}
