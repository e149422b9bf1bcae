// Package service provides the import orchestration logic.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smb-ledger/pkg/money"
	"github.com/FACorreiaa/smb-ledger/pkg/storage"
)

// EntityType selects the importer a batch runs through.
type EntityType string

const (
	EntityCustomers EntityType = "customers"
	EntityExpenses  EntityType = "expenses"
	EntityIncome    EntityType = "income"
	EntityProducts  EntityType = "products"
	EntityInvoices  EntityType = "invoices"
	EntityVendors   EntityType = "vendors"
)

// ParseEntityType validates an import type.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := entityFields[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
	return t, nil
}

// Request is one import batch.
type Request struct {
	Type      EntityType
	CompanyID uuid.UUID
	UserID    uuid.UUID
	Rows      []rows.Row
	Mappings  rows.Mapping
	// Headers of the source sheet, used to look up a saved mapping when
	// Mappings is empty.
	Headers  []string
	FileID   *uuid.UUID
	FileName string
}

// Result summarizes a finished batch.
type Result struct {
	JobID     uuid.UUID
	Imported  int
	Skipped   int
	Errors    []*RowError
	Total     *money.Money
	MappingID *uuid.UUID
	Message   string
}

// ErrorMessages renders the row errors as user facing lines.
func (r *Result) ErrorMessages() []string {
	return Messages(r.Errors)
}

// ImportSummary is what notifiers receive once a batch is done.
type ImportSummary struct {
	JobID       uuid.UUID
	CompanyName string
	To          string
	EntityType  EntityType
	FileName    string
	Imported    int
	Skipped     int
	Failed      int
	Total       string
	Errors      []string
}

// Notifier delivers import summaries, e.g. by email.
type Notifier interface {
	NotifyImport(ctx context.Context, summary ImportSummary) error
}

// Metrics receives batch and row level counters.
type Metrics interface {
	ObserveImport(entity, status string, imported, skipped, failed int, elapsed time.Duration)
	ObserveRowError(entity, kind string)
}

// ImportService orchestrates file analysis and import operations
type ImportService struct {
	repo     repository.ImportRepository
	files    storage.Storage // Optional: nil disables archiving
	notifier Notifier        // Optional: nil disables summaries
	metrics  Metrics         // Optional
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
	maxRows  int
}

const (
	defaultMaxRows    = 10000
	finishTimeout     = 10 * time.Second
	notifyTimeout     = 30 * time.Second
	maxNotifiedErrors = 10
)

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, logger *slog.Logger) *ImportService {
	return &ImportService{
		repo:    repo,
		tracer:  otel.Tracer("github.com/FACorreiaa/smb-ledger/internal/domain/import/service"),
		logger:  logger,
		now:     time.Now,
		maxRows: defaultMaxRows,
	}
}

// WithFileStore enables archiving of uploaded files
func (s *ImportService) WithFileStore(files storage.Storage) *ImportService {
	s.files = files
	return s
}

// WithNotifier adds import summary notifications
func (s *ImportService) WithNotifier(n Notifier) *ImportService {
	s.notifier = n
	return s
}

// WithMetrics adds batch metrics
func (s *ImportService) WithMetrics(m Metrics) *ImportService {
	s.metrics = m
	return s
}

// WithMaxRows caps the rows accepted per batch
func (s *ImportService) WithMaxRows(n int) *ImportService {
	if n > 0 {
		s.maxRows = n
	}
	return s
}

// ImportRows runs a batch through the importer for its type. Row failures
// end up in Result.Errors and never stop the batch; a returned error means the
// request was invalid or the store failed underneath the batch.
func (s *ImportService) ImportRows(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req.Type, req.CompanyID); err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, ErrNoData
	}
	if len(req.Rows) > s.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit is %d", ErrTooManyRows, len(req.Rows), s.maxRows)
	}

	company, err := s.company(ctx, req.CompanyID, req.UserID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, company, req)
}

func (s *ImportService) validate(t EntityType, companyID uuid.UUID) error {
	if companyID == uuid.Nil {
		return ErrCompanyRequired
	}
	if _, ok := entityFields[t]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	return nil
}

// company loads the tenant and checks the user belongs to it.
func (s *ImportService) company(ctx context.Context, companyID, userID uuid.UUID) (*repository.Company, error) {
	company, err := s.repo.GetCompanyForUser(ctx, companyID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	return company, nil
}

func (s *ImportService) run(ctx context.Context, company *repository.Company, req Request) (*Result, error) {
	result := &Result{Errors: []*RowError{}}
	var fingerprint *string
	if len(req.Headers) > 0 {
		fp := sniffer.Fingerprint(req.Headers)
		fingerprint = &fp
	}
	if len(req.Mappings) == 0 && fingerprint != nil {
		req.Mappings, result.MappingID = s.savedMapping(ctx, company.ID, req.Type, *fingerprint)
	}

	job := &repository.ImportJob{
		CompanyID:   company.ID,
		UserID:      req.UserID,
		EntityType:  string(req.Type),
		FileID:      req.FileID,
		Fingerprint: fingerprint,
		RowsTotal:   len(req.Rows),
	}
	if req.FileName != "" {
		job.FileName = &req.FileName
	}
	if err := s.repo.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	result.JobID = job.ID

	ctx, span := s.tracer.Start(ctx, "import.rows", trace.WithAttributes(
		attribute.String("import.type", string(req.Type)),
		attribute.String("import.company_id", company.ID.String()),
		attribute.Int("import.rows", len(req.Rows)),
	))
	defer span.End()

	started := s.now()
	b := &batch{
		svc:      s,
		company:  company,
		userID:   req.UserID,
		mappings: req.Mappings,
		cache:    newBatchCache(),
		now:      started,
	}
	run := b.importer(req.Type)

	var batchErr error
	for i, row := range req.Rows {
		err := run(ctx, row)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, errSkipRow):
			result.Skipped++
		case isSystemic(err):
			batchErr = fmt.Errorf("row %d: %w", i+2, err)
		default:
			rowErr := asRowError(err)
			rowErr.Row = i + 2
			result.Errors = append(result.Errors, rowErr)
			if s.metrics != nil {
				s.metrics.ObserveRowError(string(req.Type), rowErr.Problem.Kind())
			}
		}
		if batchErr != nil {
			break
		}
	}

	result.Total = money.Sum(company.Currency, b.amounts...)
	result.Message = summaryMessage(result)

	job.Status = repository.JobCompleted
	if batchErr != nil {
		job.Status = repository.JobFailed
	}
	job.RowsImported = result.Imported
	job.RowsSkipped = result.Skipped
	job.RowsFailed = len(result.Errors)
	job.Errors = result.ErrorMessages()
	s.finishJob(ctx, job)

	elapsed := s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.ObserveImport(string(req.Type), string(job.Status), result.Imported, result.Skipped, len(result.Errors), elapsed)
	}
	span.SetAttributes(
		attribute.Int("import.imported", result.Imported),
		attribute.Int("import.skipped", result.Skipped),
		attribute.Int("import.failed", len(result.Errors)),
	)

	if batchErr != nil {
		span.RecordError(batchErr)
		span.SetStatus(codes.Error, "batch aborted")
		s.logger.ErrorContext(ctx, "import batch aborted",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(req.Type)),
			slog.Int("imported", result.Imported),
			slog.Any("error", batchErr))
		return nil, fmt.Errorf("%w: %w", ErrAborted, batchErr)
	}

	s.logger.InfoContext(ctx, "import batch finished",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(req.Type)),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Errors)),
		slog.Duration("elapsed", elapsed))

	s.notify(company, req, result)
	return result, nil
}

// savedMapping looks up the company's mapping for the header fingerprint. A
// failed lookup only costs the fallback, so it is logged and ignored.
func (s *ImportService) savedMapping(ctx context.Context, companyID uuid.UUID, t EntityType, fingerprint string) (rows.Mapping, *uuid.UUID) {
	tpl, err := s.repo.GetMapping(ctx, companyID, string(t), fingerprint)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.WarnContext(ctx, "failed to lookup saved mapping", slog.Any("error", err))
		}
		return nil, nil
	}
	if err := s.repo.TouchMapping(ctx, tpl.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to touch saved mapping", slog.Any("error", err))
	}
	return rows.Mapping(tpl.Mappings), &tpl.ID
}

// finishJob stores the outcome even when the request context is gone.
func (s *ImportService) finishJob(ctx context.Context, job *repository.ImportJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := s.repo.FinishImportJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to finish import job",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
	}
}

func (s *ImportService) notify(company *repository.Company, req Request, result *Result) {
	if s.notifier == nil || company.NotifyEmail == nil || *company.NotifyEmail == "" {
		return
	}

	errs := result.ErrorMessages()
	if len(errs) > maxNotifiedErrors {
		errs = errs[:maxNotifiedErrors]
	}
	summary := ImportSummary{
		JobID:       result.JobID,
		CompanyName: company.Name,
		To:          *company.NotifyEmail,
		EntityType:  req.Type,
		FileName:    req.FileName,
		Imported:    result.Imported,
		Skipped:     result.Skipped,
		Failed:      len(result.Errors),
		Total:       result.Total.Display(),
		Errors:      errs,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyImport(ctx, summary); err != nil {
			s.logger.Warn("failed to send import summary",
				slog.String("job_id", summary.JobID.String()),
				slog.Any("error", err))
		}
	}()
}

func summaryMessage(r *Result) string {
	msg := fmt.Sprintf("Se importaron %d registros", r.Imported)
	if n := len(r.Errors); n > 0 {
		msg += fmt.Sprintf(", %d con errores", n)
	}
	if !r.Total.IsZero() {
		msg += ". Total importado: " + r.Total.Display()
	}
	return msg
}

// asRowError turns an importer error into a row error. Anything that is not
// already a RowError came from the store rejecting the row.
func asRowError(err error) *RowError {
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return &RowError{Problem: rowErr.Problem}
	}
	return &RowError{Problem: StoreFailure{Err: err}}
}

// batch is the state shared by the rows of one ImportRows call.
type batch struct {
	svc      *ImportService
	company  *repository.Company
	userID   uuid.UUID
	mappings rows.Mapping
	cache    *batchCache
	now      time.Time
	// amounts of imported money rows, summed for the response message
	amounts []decimal.Decimal
}

func (b *batch) createdBy() *uuid.UUID {
	if b.userID == uuid.Nil {
		return nil
	}
	id := b.userID
	return &id
}

// Ping reports whether the store is reachable.
func (s *ImportService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
