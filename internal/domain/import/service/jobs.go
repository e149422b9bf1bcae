package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smb-ledger/pkg/storage"
)

// SaveMappingRequest stores a column mapping for a header layout.
type SaveMappingRequest struct {
	Type        EntityType
	CompanyID   uuid.UUID
	UserID      uuid.UUID
	Headers     []string
	Fingerprint string
	Mappings    rows.Mapping
}

// SaveMapping saves a company's column mapping for future imports with the
// same headers
func (s *ImportService) SaveMapping(ctx context.Context, req SaveMappingRequest) (*repository.MappingTemplate, error) {
	if err := s.validate(req.Type, req.CompanyID); err != nil {
		return nil, err
	}
	if len(req.Mappings) == 0 {
		return nil, ErrNoMappings
	}
	fingerprint := req.Fingerprint
	if len(req.Headers) > 0 {
		fingerprint = sniffer.Fingerprint(req.Headers)
	}
	if fingerprint == "" {
		return nil, ErrNoHeaders
	}

	company, err := s.company(ctx, req.CompanyID, req.UserID)
	if err != nil {
		return nil, err
	}

	tpl, err := s.repo.SaveMapping(ctx, &repository.MappingTemplate{
		CompanyID:   company.ID,
		EntityType:  string(req.Type),
		Fingerprint: fingerprint,
		Headers:     req.Headers,
		Mappings:    req.Mappings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}
	return tpl, nil
}

// GetJob returns one import job of the company.
func (s *ImportService) GetJob(ctx context.Context, companyID, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	if companyID == uuid.Nil {
		return nil, ErrCompanyRequired
	}
	if _, err := s.company(ctx, companyID, userID); err != nil {
		return nil, err
	}

	job, err := s.repo.GetImportJob(ctx, companyID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

// ListJobs returns the company's most recent import jobs.
func (s *ImportService) ListJobs(ctx context.Context, companyID, userID uuid.UUID, limit int) ([]*repository.ImportJob, error) {
	if companyID == uuid.Nil {
		return nil, ErrCompanyRequired
	}
	if _, err := s.company(ctx, companyID, userID); err != nil {
		return nil, err
	}

	jobs, err := s.repo.ListImportJobs(ctx, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	return jobs, nil
}

// errorRecord is one line of the row error export.
type errorRecord struct {
	Row     int    `csv:"fila"`
	Message string `csv:"error"`
}

// ExportJobErrors writes the job's row errors as CSV.
func (s *ImportService) ExportJobErrors(ctx context.Context, companyID, userID, jobID uuid.UUID, w io.Writer) error {
	job, err := s.GetJob(ctx, companyID, userID, jobID)
	if err != nil {
		return err
	}

	records := make([]*errorRecord, 0, len(job.Errors))
	for _, line := range job.Errors {
		records = append(records, parseErrorLine(line))
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("failed to write error export: %w", err)
	}
	return nil
}

// parseErrorLine splits a stored "Fila N: reason" line. Lines in any other
// shape are kept whole with row 0.
func parseErrorLine(line string) *errorRecord {
	prefix, reason, ok := strings.Cut(line, ": ")
	if !ok {
		return &errorRecord{Message: line}
	}
	n, err := strconv.Atoi(strings.TrimPrefix(prefix, "Fila "))
	if err != nil {
		return &errorRecord{Message: line}
	}
	return &errorRecord{Row: n, Message: reason}
}

// OpenJobFile opens the archived source file of a job. The caller closes the
// reader.
func (s *ImportService) OpenJobFile(ctx context.Context, companyID, userID, jobID uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	if s.files == nil {
		return nil, nil, ErrNoFileStore
	}
	job, err := s.GetJob(ctx, companyID, userID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.FileID == nil {
		return nil, nil, ErrNoFile
	}

	rc, info, err := s.files.Download(ctx, companyID, *job.FileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNoFile
		}
		return nil, nil, fmt.Errorf("failed to open import file: %w", err)
	}
	return rc, info, nil
}
