// Package repository provides persistence for imported ledger records, import
// jobs and saved column mappings.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnavailable marks failures of the store itself (connection refused, pool
// closed, timeouts) as opposed to a single statement being rejected.
var ErrUnavailable = errors.New("store unavailable")

// Company is the tenant every record belongs to.
type Company struct {
	ID          uuid.UUID
	Name        string
	Currency    string
	NotifyEmail *string
}

// Customer is upserted on email when present, else on name.
type Customer struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	TaxID     *string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Vendor is upserted like Customer and carries a VND-NNNNNN number.
type Vendor struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Number      string
	Name        string
	Email       *string
	Phone       *string
	TaxID       *string
	Address     *string
	ContactName *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is upserted on sku when present, else on name.
type Product struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Name        string
	SKU         *string
	Description *string
	Price       decimal.Decimal
	Cost        *decimal.Decimal
	Stock       decimal.Decimal
	Unit        *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CategoryKind separates expense and income categories.
type CategoryKind string

const (
	CategoryExpense CategoryKind = "EXPENSE"
	CategoryIncome  CategoryKind = "INCOME"
)

// Category groups expenses or income.
type Category struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Kind      CategoryKind
	CreatedAt time.Time
}

// Expense is always inserted.
type Expense struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	CategoryID    uuid.UUID
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	Vendor        *string
	Reference     *string
	Status        string
	PaymentMethod string
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
}

// TransactionType tags ledger transactions.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Transaction is a generic ledger entry; imported income lands here.
type Transaction struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	Type          TransactionType
	CategoryID    *uuid.UUID
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	Reference     *string
	PaymentMethod string
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
}

// Invoice is always inserted and carries an INV-NNNNNN number.
type Invoice struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	CustomerID uuid.UUID
	Number     string
	IssueDate  time.Time
	DueDate    time.Time
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Status     string
	Notes      *string
	CreatedBy  *uuid.UUID
	CreatedAt  time.Time
}

// JobStatus tracks an import job.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// ImportJob records one import batch and its outcome.
type ImportJob struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	UserID       uuid.UUID
	EntityType   string
	FileID       *uuid.UUID
	FileName     *string
	Fingerprint  *string
	Status       JobStatus
	RowsTotal    int
	RowsImported int
	RowsSkipped  int
	RowsFailed   int
	Errors       []string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// MappingTemplate is a saved column mapping keyed by header fingerprint.
type MappingTemplate struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	EntityType  string
	Fingerprint string
	Headers     []string
	Mappings    map[string]string
	UseCount    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CompanyRepository resolves tenants.
type CompanyRepository interface {
	// GetCompanyForUser returns sql.ErrNoRows when the company does not exist
	// or the user is not a member.
	GetCompanyForUser(ctx context.Context, companyID, userID uuid.UUID) (*Company, error)
	Ping(ctx context.Context) error
}

// RecordRepository persists the ledger records an import produces. Finders
// return sql.ErrNoRows when nothing matches.
type RecordRepository interface {
	FindCustomerByEmail(ctx context.Context, companyID uuid.UUID, email string) (*Customer, error)
	FindCustomerByName(ctx context.Context, companyID uuid.UUID, name string) (*Customer, error)
	// SearchCustomerByName matches customers whose name contains fragment,
	// case-insensitively, preferring the shortest name.
	SearchCustomerByName(ctx context.Context, companyID uuid.UUID, fragment string) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, c *Customer) error

	FindVendorByEmail(ctx context.Context, companyID uuid.UUID, email string) (*Vendor, error)
	FindVendorByName(ctx context.Context, companyID uuid.UUID, name string) (*Vendor, error)
	CreateVendor(ctx context.Context, v *Vendor) error
	UpdateVendor(ctx context.Context, v *Vendor) error

	FindProductBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*Product, error)
	FindProductByName(ctx context.Context, companyID uuid.UUID, name string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error

	FindCategory(ctx context.Context, companyID uuid.UUID, kind CategoryKind, name string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error

	CreateExpense(ctx context.Context, e *Expense) error
	CreateTransaction(ctx context.Context, t *Transaction) error
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// NextSequence atomically increments and returns the named counter.
	NextSequence(ctx context.Context, companyID uuid.UUID, name string) (int64, error)
	// ReconcileSequences raises counters that fell behind numbers already
	// stored on vendors and invoices. It returns the number of counters moved.
	ReconcileSequences(ctx context.Context) (int64, error)
}

// JobRepository persists import job history.
type JobRepository interface {
	CreateImportJob(ctx context.Context, job *ImportJob) error
	FinishImportJob(ctx context.Context, job *ImportJob) error
	GetImportJob(ctx context.Context, companyID, jobID uuid.UUID) (*ImportJob, error)
	ListImportJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*ImportJob, error)
	PruneImportJobs(ctx context.Context, before time.Time) (int64, error)
}

// MappingRepository persists saved column mappings.
type MappingRepository interface {
	SaveMapping(ctx context.Context, m *MappingTemplate) (*MappingTemplate, error)
	GetMapping(ctx context.Context, companyID uuid.UUID, entityType, fingerprint string) (*MappingTemplate, error)
	TouchMapping(ctx context.Context, id uuid.UUID) error
}

// ImportRepository is everything the import service needs from storage.
type ImportRepository interface {
	CompanyRepository
	RecordRepository
	JobRepository
	MappingRepository
}
