package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// FileRequest is an uploaded spreadsheet to import.
type FileRequest struct {
	Type        EntityType
	CompanyID   uuid.UUID
	UserID      uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
	Mappings    rows.Mapping
	Options     parser.Options
}

// ImportFile parses an uploaded CSV/TSV/XLSX file, archives it and imports
// its rows.
func (s *ImportService) ImportFile(ctx context.Context, req FileRequest) (*Result, error) {
	if err := s.validate(req.Type, req.CompanyID); err != nil {
		return nil, err
	}

	parsed, err := s.parse(req.Data, req.FileName, req.Options)
	if err != nil {
		return nil, err
	}
	if len(parsed.Rows) == 0 {
		return nil, ErrNoData
	}

	company, err := s.company(ctx, req.CompanyID, req.UserID)
	if err != nil {
		return nil, err
	}

	rowsReq := Request{
		Type:      req.Type,
		CompanyID: company.ID,
		UserID:    req.UserID,
		Rows:      parsed.Rows,
		Mappings:  req.Mappings,
		Headers:   parsed.Headers,
		FileName:  req.FileName,
	}
	if s.files != nil {
		info, err := s.files.Upload(ctx, company.ID, req.FileName, req.ContentType, bytes.NewReader(req.Data))
		if err != nil {
			s.logger.WarnContext(ctx, "failed to archive import file",
				slog.String("file", req.FileName),
				slog.Any("error", err))
		} else {
			rowsReq.FileID = &info.ID
		}
	}

	return s.run(ctx, company, rowsReq)
}

// parse applies the batch row limit and maps parser failures onto request
// errors.
func (s *ImportService) parse(data []byte, filename string, opts parser.Options) (*parser.Result, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	if opts.MaxRows == 0 || opts.MaxRows > s.maxRows {
		opts.MaxRows = s.maxRows
	}

	parsed, err := parser.Parse(data, filename, opts)
	switch {
	case err == nil:
		return parsed, nil
	case errors.Is(err, parser.ErrTooManyRows):
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, s.maxRows)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
}
