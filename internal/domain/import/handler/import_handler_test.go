package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/smb-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/smb-ledger/pkg/interceptors"
)

// stubRepository implements the calls an expense import makes. Any other
// method panics through the nil embedded interface.
type stubRepository struct {
	repository.ImportRepository

	mu         sync.Mutex
	company    *repository.Company
	categories []*repository.Category
	expenses   []*repository.Expense
	jobs       map[uuid.UUID]*repository.ImportJob
	mappings   []*repository.MappingTemplate
	expenseErr error
	pingErr    error
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		company: &repository.Company{ID: uuid.New(), Name: "Papelería Centro", Currency: "MXN"},
		jobs:    make(map[uuid.UUID]*repository.ImportJob),
	}
}

func (s *stubRepository) GetCompanyForUser(_ context.Context, companyID, _ uuid.UUID) (*repository.Company, error) {
	if companyID != s.company.ID {
		return nil, sql.ErrNoRows
	}
	return s.company, nil
}

func (s *stubRepository) Ping(context.Context) error { return s.pingErr }

func (s *stubRepository) FindCategory(_ context.Context, companyID uuid.UUID, kind repository.CategoryKind, name string) (*repository.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Kind == kind && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubRepository) CreateCategory(_ context.Context, c *repository.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.New()
	s.categories = append(s.categories, c)
	return nil
}

func (s *stubRepository) CreateExpense(_ context.Context, e *repository.Expense) error {
	if s.expenseErr != nil {
		return s.expenseErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.New()
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *stubRepository) CreateImportJob(_ context.Context, job *repository.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = uuid.New()
	job.Status = repository.JobRunning
	job.StartedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubRepository) FinishImportJob(_ context.Context, job *repository.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	now := time.Now()
	cp.FinishedAt = &now
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubRepository) GetImportJob(_ context.Context, companyID, jobID uuid.UUID) (*repository.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.CompanyID != companyID {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (s *stubRepository) ListImportJobs(_ context.Context, companyID uuid.UUID, limit int) ([]*repository.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.ImportJob
	for _, j := range s.jobs {
		if j.CompanyID == companyID && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *stubRepository) GetMapping(_ context.Context, companyID uuid.UUID, entityType, fingerprint string) (*repository.MappingTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.CompanyID == companyID && m.EntityType == entityType && m.Fingerprint == fingerprint {
			return m, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubRepository) TouchMapping(context.Context, uuid.UUID) error { return nil }

func (s *stubRepository) SaveMapping(_ context.Context, m *repository.MappingTemplate) (*repository.MappingTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.New()
	m.UseCount = 0
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	s.mappings = append(s.mappings, m)
	return m, nil
}

type testServer struct {
	repo   *stubRepository
	router chi.Router
	userID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newStubRepository()
	svc := importservice.NewImportService(repo, logger)
	h := NewImportHandler(svc, logger).WithMaxUpload(1 << 20)

	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Route("/api/import", h.Routes)
	return &testServer{repo: repo, router: r, userID: uuid.New()}
}

func (ts *testServer) do(t *testing.T, req *http.Request, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()
	if authenticated {
		req = req.WithContext(interceptors.WithUserID(req.Context(), ts.userID.String()))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

func TestImportRows_ExpenseScenario(t *testing.T) {
	ts := newTestServer(t)
	body := fmt.Sprintf(`{
		"type": "expenses",
		"companyId": %q,
		"data": [
			{"Fecha": "2024-03-05", "Concepto": "Papel", "Monto": "$1,200.50", "Proveedor": "COMPRA OFFICE MAX"},
			{"Fecha": "Total", "Concepto": "", "Monto": "1200.50"},
			{"Fecha": "2024-03-06", "Concepto": "Sin monto", "Monto": ""}
		]
	}`, ts.repo.company.ID)

	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import", body), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[importResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Imported)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "Fila 4: Monto no encontrado"), resp.Errors[0])
	assert.Contains(t, resp.Message, "Se importaron 1 registros, 1 con errores")
	assert.NotEqual(t, uuid.Nil, resp.JobID)

	require.Len(t, ts.repo.expenses, 1)
	e := ts.repo.expenses[0]
	assert.Equal(t, "1200.5", e.Amount.String())
	assert.Equal(t, "2024-03-05", e.Date.Format("2006-01-02"))
	require.NotNil(t, e.Vendor)
	assert.Equal(t, "Office Max", *e.Vendor)
	assert.Equal(t, ts.userID, *e.CreatedBy)
}

func TestImportRows_RequestErrors(t *testing.T) {
	ts := newTestServer(t)
	company := ts.repo.company.ID.String()
	row := `[{"Concepto": "Luz", "Monto": "100"}]`
	// Past the 1 MB limit of the test server.
	oversized := "[" + strings.Repeat(`{"Concepto":"Papel bond carta","Monto":"100"},`, 30000) + `{"Concepto":"Luz","Monto":"1"}]`

	tests := []struct {
		name     string
		body     string
		auth     bool
		wantCode int
	}{
		{"no token", fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":%s}`, company, row), false, http.StatusUnauthorized},
		{"malformed json", `{"type":`, true, http.StatusBadRequest},
		{"missing data", fmt.Sprintf(`{"type":"expenses","companyId":%q}`, company), true, http.StatusBadRequest},
		{"empty data", fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":[]}`, company), true, http.StatusBadRequest},
		{"missing company", fmt.Sprintf(`{"type":"expenses","data":%s}`, row), true, http.StatusBadRequest},
		{"malformed company", fmt.Sprintf(`{"type":"expenses","companyId":"acme","data":%s}`, row), true, http.StatusBadRequest},
		{"unsupported type", fmt.Sprintf(`{"type":"payroll","companyId":%q,"data":%s}`, company, row), true, http.StatusBadRequest},
		{"unknown company", fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":%s}`, uuid.New(), row), true, http.StatusNotFound},
		{"body too large", fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":%s}`, company, oversized), true, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import", tt.body), tt.auth)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			body := decode[errorBody](t, rec)
			assert.NotEmpty(t, body.Error)
		})
	}
	assert.Empty(t, ts.repo.expenses)
}

func TestImportRows_SystemicFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.repo.expenseErr = fmt.Errorf("create expense: %w", repository.ErrUnavailable)

	body := fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":[{"Concepto":"Luz","Monto":"100"}]}`, ts.repo.company.ID)
	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import", body), true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[errorBody](t, rec)
	assert.Equal(t, "internal server error", resp.Error)
	assert.NotEmpty(t, resp.Details)
	assert.NotContains(t, rec.Body.String(), "unavailable")
}

func multipartRequest(t *testing.T, target string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportFile(t *testing.T) {
	ts := newTestServer(t)
	csv := "Reporte de gastos marzo\nFecha,Concepto,Importe\n2024-03-01,Renta,8500\n2024-03-02,Luz,\"1,250.40\"\n"

	req := multipartRequest(t, "/api/import/file", map[string]string{
		"type":      "expenses",
		"companyId": ts.repo.company.ID.String(),
		"mappings":  `{"Importe": "amount"}`,
	}, "gastos.csv", csv)
	rec := ts.do(t, req, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[importResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, "$9,750.40", resp.Total)
	require.Len(t, ts.repo.expenses, 2)
	assert.Equal(t, "Luz", ts.repo.expenses[1].Description)
}

func TestImportFile_Rejections(t *testing.T) {
	ts := newTestServer(t)
	company := ts.repo.company.ID.String()

	t.Run("missing file", func(t *testing.T) {
		req := multipartRequest(t, "/api/import/file", map[string]string{"type": "expenses", "companyId": company}, "", "")
		assert.Equal(t, http.StatusBadRequest, ts.do(t, req, true).Code)
	})
	t.Run("bad mappings", func(t *testing.T) {
		req := multipartRequest(t, "/api/import/file", map[string]string{
			"type": "expenses", "companyId": company, "mappings": "{",
		}, "gastos.csv", "Concepto,Monto\nLuz,10\n")
		assert.Equal(t, http.StatusBadRequest, ts.do(t, req, true).Code)
	})
	t.Run("unsupported format", func(t *testing.T) {
		req := multipartRequest(t, "/api/import/file", map[string]string{"type": "expenses", "companyId": company}, "gastos.pdf", "%PDF-1.4\n\xff\xfe\xfd")
		assert.Equal(t, http.StatusBadRequest, ts.do(t, req, true).Code)
	})
	t.Run("too large", func(t *testing.T) {
		big := "Concepto,Monto\n" + strings.Repeat("Papel bond carta,100\n", 60000)
		req := multipartRequest(t, "/api/import/file", map[string]string{"type": "expenses", "companyId": company}, "gastos.csv", big)
		rec := ts.do(t, req, true)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
	t.Run("file store disabled", func(t *testing.T) {
		jobID := uuid.New()
		ts.repo.jobs[jobID] = &repository.ImportJob{ID: jobID, CompanyID: ts.repo.company.ID}
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs/"+jobID.String()+"/file?companyId="+company, nil), true)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
	assert.Empty(t, ts.repo.expenses)
}

func TestAnalyze(t *testing.T) {
	ts := newTestServer(t)

	t.Run("headers only", func(t *testing.T) {
		body := fmt.Sprintf(`{"type":"expenses","companyId":%q,"headers":["Fecha","Descripción","Monto","Provedor"]}`, ts.repo.company.ID)
		rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import/analyze", body), true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[analyzeResponse](t, rec)
		assert.Equal(t, "Monto", resp.Suggestions["amount"])
		assert.Equal(t, "Fecha", resp.Suggestions["date"])
		assert.NotEmpty(t, resp.Fingerprint)
		assert.Nil(t, resp.SavedMapping)
	})

	t.Run("file", func(t *testing.T) {
		req := multipartRequest(t, "/api/import/analyze", map[string]string{
			"type": "customers", "companyId": ts.repo.company.ID.String(),
		}, "clientes.csv", "Nombre;Correo\nAna;ana@correo.mx\nLuis;luis@correo.mx\n")
		rec := ts.do(t, req, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[analyzeResponse](t, rec)
		assert.Equal(t, "csv", resp.Format)
		assert.Equal(t, []string{"Nombre", "Correo"}, resp.Headers)
		assert.Equal(t, 2, resp.RowCount)
		assert.Len(t, resp.SampleRows, 2)
		assert.Equal(t, "Nombre", resp.Suggestions["name"])
	})

	t.Run("no headers", func(t *testing.T) {
		body := fmt.Sprintf(`{"type":"expenses","companyId":%q}`, ts.repo.company.ID)
		rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import/analyze", body), true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSaveMappingThenImport(t *testing.T) {
	ts := newTestServer(t)
	company := ts.repo.company.ID

	body := fmt.Sprintf(`{"type":"expenses","companyId":%q,"headers":["Col A","Col B"],"mappings":{"Col A":"description","Col B":"amount"}}`, company)
	rec := ts.do(t, jsonRequest(http.MethodPut, "/api/import/mappings", body), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[mappingResponse](t, rec)
	assert.Equal(t, "expenses", saved.EntityType)
	assert.Equal(t, "amount", saved.Mappings["Col B"])

	body = fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":[{"Col A":"Internet","Col B":"599"}]}`, company)
	rec = ts.do(t, jsonRequest(http.MethodPost, "/api/import", body), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, ts.repo.expenses, 1)
	assert.Equal(t, "Internet", ts.repo.expenses[0].Description)
	assert.Equal(t, "599", ts.repo.expenses[0].Amount.String())

	t.Run("mappings required", func(t *testing.T) {
		body := fmt.Sprintf(`{"type":"expenses","companyId":%q,"headers":["Col A"]}`, company)
		rec := ts.do(t, jsonRequest(http.MethodPut, "/api/import/mappings", body), true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJobs(t *testing.T) {
	ts := newTestServer(t)
	company := ts.repo.company.ID.String()

	body := fmt.Sprintf(`{"type":"expenses","companyId":%q,"data":[{"Fecha":"2024-03-01","Concepto":"Luz","Monto":"100"},{"Fecha":"2024-03-02","Concepto":"Agua","Monto":""}]}`, company)
	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/import", body), true)
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decode[importResponse](t, rec).JobID.String()

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs/"+jobID+"?companyId="+company, nil), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[jobResponse](t, rec)
	assert.Equal(t, "COMPLETED", job.Status)
	assert.Equal(t, 1, job.RowsImported)
	assert.Equal(t, 1, job.RowsFailed)
	assert.False(t, job.HasFile)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs?companyId="+company+"&limit=5", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]jobResponse](t, rec)
	assert.Len(t, list["jobs"], 1)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs/"+jobID+"/errors.csv?companyId="+company, nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "fila,error\n3,"), rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Monto no encontrado")

	t.Run("not found", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs/"+uuid.NewString()+"?companyId="+company, nil), true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("bad id", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs/123?companyId="+company, nil), true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("bad limit", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/import/jobs?companyId="+company+"&limit=-1", nil), true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), false)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.repo.pingErr = repository.ErrUnavailable
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
