package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
)

// Request-level failures. Nothing is processed when one of these is returned.
var (
	ErrUnsupportedType = errors.New("unsupported import type")
	ErrNoData          = errors.New("no rows to import")
	ErrCompanyRequired = errors.New("company id is required")
	ErrCompanyNotFound = errors.New("company not found")
	ErrTooManyRows     = errors.New("too many rows")
	ErrJobNotFound     = errors.New("import job not found")
	ErrNoHeaders       = errors.New("headers or fingerprint required")
	ErrNoFileStore     = errors.New("file archive not configured")
	ErrNoFile          = errors.New("import job has no archived file")
	ErrInvalidFile     = errors.New("invalid import file")
	ErrNoMappings      = errors.New("mappings are required")
)

// ErrAborted wraps a store failure that stopped a batch midway. Rows before
// the failing one stay committed.
var ErrAborted = errors.New("import aborted")

// maxDiagnosticLen bounds the column dump attached to unresolved amounts.
const maxDiagnosticLen = 200

// RowProblem is the reason a row was rejected. Implementations are the tagged
// variants below; Message renders the user facing text.
type RowProblem interface {
	Kind() string
	Message() string
}

// MissingRequiredField reports an empty required text field.
type MissingRequiredField struct {
	Field string
}

func (MissingRequiredField) Kind() string { return "missing_field" }

func (p MissingRequiredField) Message() string {
	switch p.Field {
	case fieldName:
		return "Nombre requerido"
	case fieldCustomer:
		return "Cliente requerido"
	default:
		return fmt.Sprintf("Campo requerido: %s", p.Field)
	}
}

// UnresolvedAmount reports that no cell could serve as the amount (or total)
// of the row. Columns is the row dump shown to the user.
type UnresolvedAmount struct {
	Field   string
	Columns string
}

func (UnresolvedAmount) Kind() string { return "unresolved_amount" }

func (p UnresolvedAmount) Message() string {
	label := "Monto"
	if p.Field == fieldTotal {
		label = "Total"
	}
	return fmt.Sprintf("%s no encontrado. Columnas: %s", label, truncate(p.Columns, maxDiagnosticLen))
}

// InvalidValue reports a cell that was found but could not be used.
type InvalidValue struct {
	Field string
	Raw   string
}

func (InvalidValue) Kind() string { return "invalid_value" }

func (p InvalidValue) Message() string {
	return fmt.Sprintf("Valor inválido en %s: %q", p.Field, p.Raw)
}

// StoreFailure reports a statement the store rejected for this row only.
type StoreFailure struct {
	Err error
}

func (StoreFailure) Kind() string { return "store_failure" }

func (p StoreFailure) Message() string {
	var pgErr *pgconn.PgError
	if errors.As(p.Err, &pgErr) {
		return "Error al guardar: " + pgErr.Message
	}
	return fmt.Sprintf("Error al guardar: %v", p.Err)
}

// RowError ties a problem to its spreadsheet line: the data index plus two,
// one for 1-based numbering and one for the header.
type RowError struct {
	Row     int
	Problem RowProblem
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Fila %d: %s", e.Row, e.Problem.Message())
}

func rowProblem(p RowProblem) error {
	return &RowError{Problem: p}
}

// isSystemic tells batch-ending failures apart from errors that only concern
// the current row.
func isSystemic(err error) bool {
	return errors.Is(err, repository.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Messages renders row errors for the response body.
func Messages(errs []*RowError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
