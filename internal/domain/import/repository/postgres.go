package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Counter names used with NextSequence.
const (
	SequenceVendor  = "vendor"
	SequenceInvoice = "invoice"
)

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db DBTX
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DBTX) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// storeErr maps driver errors onto the repository's error vocabulary.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Ping checks connectivity
func (r *PostgresImportRepository) Ping(ctx context.Context) error {
	return storeErr("ping", r.db.Ping(ctx))
}

// GetCompanyForUser returns the company when userID is one of its members
func (r *PostgresImportRepository) GetCompanyForUser(ctx context.Context, companyID, userID uuid.UUID) (*Company, error) {
	query := `
		SELECT c.id, c.name, c.currency, c.notify_email
		FROM companies c
		JOIN company_members m ON m.company_id = c.id
		WHERE c.id = $1 AND m.user_id = $2`

	var c Company
	err := r.db.QueryRow(ctx, query, companyID, userID).Scan(&c.ID, &c.Name, &c.Currency, &c.NotifyEmail)
	if err != nil {
		return nil, storeErr("get company", err)
	}
	return &c, nil
}

const customerColumns = `id, company_id, name, email, phone, tax_id, address, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.TaxID, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCustomerByEmail looks a customer up by email, case-insensitively
func (r *PostgresImportRepository) FindCustomerByEmail(ctx context.Context, companyID uuid.UUID, email string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
		WHERE company_id = $1 AND lower(email) = lower($2)
		ORDER BY created_at LIMIT 1`
	c, err := scanCustomer(r.db.QueryRow(ctx, query, companyID, email))
	return c, storeErr("find customer by email", err)
}

// FindCustomerByName looks a customer up by exact name, case-insensitively
func (r *PostgresImportRepository) FindCustomerByName(ctx context.Context, companyID uuid.UUID, name string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
		WHERE company_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at LIMIT 1`
	c, err := scanCustomer(r.db.QueryRow(ctx, query, companyID, name))
	return c, storeErr("find customer by name", err)
}

// SearchCustomerByName finds the shortest customer name containing fragment
func (r *PostgresImportRepository) SearchCustomerByName(ctx context.Context, companyID uuid.UUID, fragment string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
		WHERE company_id = $1 AND name ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY length(name), created_at LIMIT 1`
	c, err := scanCustomer(r.db.QueryRow(ctx, query, companyID, escapeLike(fragment)))
	return c, storeErr("search customer", err)
}

// CreateCustomer inserts a new customer
func (r *PostgresImportRepository) CreateCustomer(ctx context.Context, c *Customer) error {
	query := `
		INSERT INTO customers (id, company_id, name, email, phone, tax_id, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.TaxID, c.Address).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	return storeErr("create customer", err)
}

// UpdateCustomer overwrites a customer in place
func (r *PostgresImportRepository) UpdateCustomer(ctx context.Context, c *Customer) error {
	query := `
		UPDATE customers
		SET name = $3, email = $4, phone = $5, tax_id = $6, address = $7, updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.TaxID, c.Address).
		Scan(&c.UpdatedAt)
	return storeErr("update customer", err)
}

const vendorColumns = `id, company_id, number, name, email, phone, tax_id, address, contact_name, created_at, updated_at`

func scanVendor(row pgx.Row) (*Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.CompanyID, &v.Number, &v.Name, &v.Email, &v.Phone, &v.TaxID, &v.Address,
		&v.ContactName, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVendorByEmail looks a vendor up by email, case-insensitively
func (r *PostgresImportRepository) FindVendorByEmail(ctx context.Context, companyID uuid.UUID, email string) (*Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors
		WHERE company_id = $1 AND lower(email) = lower($2)
		ORDER BY created_at LIMIT 1`
	v, err := scanVendor(r.db.QueryRow(ctx, query, companyID, email))
	return v, storeErr("find vendor by email", err)
}

// FindVendorByName looks a vendor up by exact name, case-insensitively
func (r *PostgresImportRepository) FindVendorByName(ctx context.Context, companyID uuid.UUID, name string) (*Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors
		WHERE company_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at LIMIT 1`
	v, err := scanVendor(r.db.QueryRow(ctx, query, companyID, name))
	return v, storeErr("find vendor by name", err)
}

// CreateVendor inserts a new vendor
func (r *PostgresImportRepository) CreateVendor(ctx context.Context, v *Vendor) error {
	query := `
		INSERT INTO vendors (id, company_id, number, name, email, phone, tax_id, address, contact_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, v.ID, v.CompanyID, v.Number, v.Name, v.Email, v.Phone, v.TaxID,
		v.Address, v.ContactName).Scan(&v.CreatedAt, &v.UpdatedAt)
	return storeErr("create vendor", err)
}

// UpdateVendor overwrites a vendor in place; the number never changes
func (r *PostgresImportRepository) UpdateVendor(ctx context.Context, v *Vendor) error {
	query := `
		UPDATE vendors
		SET name = $3, email = $4, phone = $5, tax_id = $6, address = $7, contact_name = $8, updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, v.ID, v.CompanyID, v.Name, v.Email, v.Phone, v.TaxID, v.Address,
		v.ContactName).Scan(&v.UpdatedAt)
	return storeErr("update vendor", err)
}

const productColumns = `id, company_id, name, sku, description, price, cost, stock, unit, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.SKU, &p.Description, &p.Price, &p.Cost, &p.Stock,
		&p.Unit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProductBySKU looks a product up by sku, case-insensitively
func (r *PostgresImportRepository) FindProductBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE company_id = $1 AND lower(sku) = lower($2)
		ORDER BY created_at LIMIT 1`
	p, err := scanProduct(r.db.QueryRow(ctx, query, companyID, sku))
	return p, storeErr("find product by sku", err)
}

// FindProductByName looks a product up by exact name, case-insensitively
func (r *PostgresImportRepository) FindProductByName(ctx context.Context, companyID uuid.UUID, name string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE company_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at LIMIT 1`
	p, err := scanProduct(r.db.QueryRow(ctx, query, companyID, name))
	return p, storeErr("find product by name", err)
}

// CreateProduct inserts a new product
func (r *PostgresImportRepository) CreateProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (id, company_id, name, sku, description, price, cost, stock, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, p.ID, p.CompanyID, p.Name, p.SKU, p.Description, p.Price, p.Cost,
		p.Stock, p.Unit).Scan(&p.CreatedAt, &p.UpdatedAt)
	return storeErr("create product", err)
}

// UpdateProduct overwrites a product in place
func (r *PostgresImportRepository) UpdateProduct(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $3, sku = $4, description = $5, price = $6, cost = $7, stock = $8, unit = $9, updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, p.ID, p.CompanyID, p.Name, p.SKU, p.Description, p.Price, p.Cost,
		p.Stock, p.Unit).Scan(&p.UpdatedAt)
	return storeErr("update product", err)
}

// FindCategory looks a category up by kind and name, case-insensitively
func (r *PostgresImportRepository) FindCategory(ctx context.Context, companyID uuid.UUID, kind CategoryKind, name string) (*Category, error) {
	query := `
		SELECT id, company_id, name, kind, created_at
		FROM categories
		WHERE company_id = $1 AND kind = $2 AND lower(name) = lower($3)`

	var c Category
	err := r.db.QueryRow(ctx, query, companyID, kind, name).Scan(&c.ID, &c.CompanyID, &c.Name, &c.Kind, &c.CreatedAt)
	if err != nil {
		return nil, storeErr("find category", err)
	}
	return &c, nil
}

// CreateCategory inserts a category, returning the existing row when another
// writer created the same name first
func (r *PostgresImportRepository) CreateCategory(ctx context.Context, c *Category) error {
	query := `
		INSERT INTO categories (id, company_id, name, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, kind, lower(name)) DO UPDATE SET name = categories.name
		RETURNING id, created_at`

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, c.ID, c.CompanyID, c.Name, c.Kind).Scan(&c.ID, &c.CreatedAt)
	return storeErr("create category", err)
}

// CreateExpense inserts an expense
func (r *PostgresImportRepository) CreateExpense(ctx context.Context, e *Expense) error {
	query := `
		INSERT INTO expenses (id, company_id, category_id, amount, expense_date, description, vendor,
			reference, status, payment_method, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, e.ID, e.CompanyID, e.CategoryID, e.Amount, e.Date, e.Description,
		e.Vendor, e.Reference, e.Status, e.PaymentMethod, e.CreatedBy).Scan(&e.CreatedAt)
	return storeErr("create expense", err)
}

// CreateTransaction inserts a ledger transaction
func (r *PostgresImportRepository) CreateTransaction(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (id, company_id, type, category_id, amount, transaction_date, description,
			reference, payment_method, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, t.ID, t.CompanyID, t.Type, t.CategoryID, t.Amount, t.Date, t.Description,
		t.Reference, t.PaymentMethod, t.CreatedBy).Scan(&t.CreatedAt)
	return storeErr("create transaction", err)
}

// CreateInvoice inserts an invoice
func (r *PostgresImportRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO invoices (id, company_id, customer_id, number, issue_date, due_date, subtotal, tax, total,
			status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, query, inv.ID, inv.CompanyID, inv.CustomerID, inv.Number, inv.IssueDate,
		inv.DueDate, inv.Subtotal, inv.Tax, inv.Total, inv.Status, inv.Notes, inv.CreatedBy).Scan(&inv.CreatedAt)
	return storeErr("create invoice", err)
}

// NextSequence increments and reads a counter in one statement. A company's
// first call starts after the highest number already stored, and a counter
// that fell behind catches up.
func (r *PostgresImportRepository) NextSequence(ctx context.Context, companyID uuid.UUID, name string) (int64, error) {
	query := `
		WITH used AS (
			SELECT number FROM vendors
			WHERE company_id = $1 AND $2::text = 'vendor' AND number ~ '^VND-[0-9]+$'
			UNION ALL
			SELECT number FROM invoices
			WHERE company_id = $1 AND $2::text = 'invoice' AND number ~ '^INV-[0-9]+$'
		), seed AS (
			SELECT COALESCE(MAX(substring(number FROM '[0-9]+$')::bigint), 0) + 1 AS value FROM used
		)
		INSERT INTO sequence_counters (company_id, name, value)
		SELECT $1, $2, value FROM seed
		ON CONFLICT (company_id, name) DO UPDATE SET
			value = GREATEST(sequence_counters.value + 1, EXCLUDED.value),
			updated_at = now()
		RETURNING value`

	var value int64
	if err := r.db.QueryRow(ctx, query, companyID, name).Scan(&value); err != nil {
		return 0, storeErr("next sequence", err)
	}
	return value, nil
}

// ReconcileSequences moves counters up to the highest number in use
func (r *PostgresImportRepository) ReconcileSequences(ctx context.Context) (int64, error) {
	query := `
		WITH observed AS (
			SELECT company_id, 'vendor' AS name, MAX(substring(number FROM '[0-9]+$')::bigint) AS value
			FROM vendors WHERE number ~ '^VND-[0-9]+$'
			GROUP BY company_id
			UNION ALL
			SELECT company_id, 'invoice' AS name, MAX(substring(number FROM '[0-9]+$')::bigint) AS value
			FROM invoices WHERE number ~ '^INV-[0-9]+$'
			GROUP BY company_id
		)
		INSERT INTO sequence_counters (company_id, name, value)
		SELECT company_id, name, value FROM observed
		ON CONFLICT (company_id, name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
		WHERE sequence_counters.value < EXCLUDED.value`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, storeErr("reconcile sequences", err)
	}
	return tag.RowsAffected(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
