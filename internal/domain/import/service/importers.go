package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/classifier"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/resolver"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// errSkipRow marks title, header and summary rows. They are neither imported
// nor reported.
var errSkipRow = errors.New("row skipped")

const (
	defaultExpenseCategory = "General"
	defaultExpenseNote     = "Gasto importado"
	defaultIncomeNote      = "Ingreso importado"
	expenseStatus          = "APPROVED"
	invoiceStatus          = "PENDING"
	invoiceTermDays        = 30
)

type rowImporter func(ctx context.Context, row rows.Row) error

func (b *batch) importer(t EntityType) rowImporter {
	switch t {
	case EntityCustomers:
		return b.importCustomer
	case EntityVendors:
		return b.importVendor
	case EntityProducts:
		return b.importProduct
	case EntityExpenses:
		return b.importExpense
	case EntityIncome:
		return b.importIncome
	case EntityInvoices:
		return b.importInvoice
	default:
		return func(context.Context, rows.Row) error { return fmt.Errorf("%w: %q", ErrUnsupportedType, t) }
	}
}

// notFound folds sql.ErrNoRows into a nil result.
func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (b *batch) importCustomer(ctx context.Context, row rows.Row) error {
	name, ok := nameField.text(row, b.mappings)
	if !ok {
		return rowProblem(MissingRequiredField{Field: fieldName})
	}
	email := emailField.optional(row, b.mappings)

	cust, err := b.findCustomer(ctx, email, name)
	if err != nil {
		return err
	}

	repo := b.svc.repo
	if cust == nil {
		cust = &repository.Customer{CompanyID: b.company.ID, Name: name, Email: email}
		fillContact(row, b.mappings, &cust.Phone, &cust.TaxID, &cust.Address)
		if err := repo.CreateCustomer(ctx, cust); err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
	} else {
		cust.Name = name
		if email != nil {
			cust.Email = email
		}
		fillContact(row, b.mappings, &cust.Phone, &cust.TaxID, &cust.Address)
		if err := repo.UpdateCustomer(ctx, cust); err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
	}
	b.cache.putCustomer(cust)
	return nil
}

func (b *batch) findCustomer(ctx context.Context, email *string, name string) (*repository.Customer, error) {
	if hit := b.cache.customer(email, name); hit != nil {
		return hit, nil
	}
	if email != nil {
		return notFound(b.svc.repo.FindCustomerByEmail(ctx, b.company.ID, *email))
	}
	return notFound(b.svc.repo.FindCustomerByName(ctx, b.company.ID, name))
}

// fillContact overwrites the optional contact fields that the row carries and
// leaves the rest untouched.
func fillContact(row rows.Row, m rows.Mapping, phone, taxID, address **string) {
	if v := phoneField.optional(row, m); v != nil {
		*phone = v
	}
	if v := taxIDField.optional(row, m); v != nil {
		*taxID = v
	}
	if v := addressField.optional(row, m); v != nil {
		*address = v
	}
}

func (b *batch) importVendor(ctx context.Context, row rows.Row) error {
	name, ok := nameField.text(row, b.mappings)
	if !ok {
		return rowProblem(MissingRequiredField{Field: fieldName})
	}
	// The name is the natural key; statement cleanup would break matching.
	name = normalizer.CleanText(name)
	email := emailField.optional(row, b.mappings)

	v, err := b.findVendor(ctx, email, name)
	if err != nil {
		return err
	}

	repo := b.svc.repo
	if v == nil {
		n, err := repo.NextSequence(ctx, b.company.ID, repository.SequenceVendor)
		if err != nil {
			return fmt.Errorf("next vendor number: %w", err)
		}
		v = &repository.Vendor{CompanyID: b.company.ID, Number: fmt.Sprintf("VND-%06d", n), Name: name, Email: email}
		fillContact(row, b.mappings, &v.Phone, &v.TaxID, &v.Address)
		v.ContactName = contactField.optional(row, b.mappings)
		if err := repo.CreateVendor(ctx, v); err != nil {
			return fmt.Errorf("create vendor: %w", err)
		}
	} else {
		v.Name = name
		if email != nil {
			v.Email = email
		}
		fillContact(row, b.mappings, &v.Phone, &v.TaxID, &v.Address)
		if contact := contactField.optional(row, b.mappings); contact != nil {
			v.ContactName = contact
		}
		if err := repo.UpdateVendor(ctx, v); err != nil {
			return fmt.Errorf("update vendor: %w", err)
		}
	}
	b.cache.putVendor(v)
	return nil
}

func (b *batch) findVendor(ctx context.Context, email *string, name string) (*repository.Vendor, error) {
	if hit := b.cache.vendor(email, name); hit != nil {
		return hit, nil
	}
	if email != nil {
		return notFound(b.svc.repo.FindVendorByEmail(ctx, b.company.ID, *email))
	}
	return notFound(b.svc.repo.FindVendorByName(ctx, b.company.ID, name))
}

func (b *batch) importProduct(ctx context.Context, row rows.Row) error {
	name, ok := nameField.text(row, b.mappings)
	if !ok {
		return rowProblem(MissingRequiredField{Field: fieldName})
	}
	sku := skuField.optional(row, b.mappings)

	p, err := b.findProduct(ctx, sku, name)
	if err != nil {
		return err
	}

	repo := b.svc.repo
	created := p == nil
	if created {
		p = &repository.Product{CompanyID: b.company.ID}
	}
	p.Name = name
	if sku != nil {
		p.SKU = sku
	}
	if v := productDescriptionField.optional(row, b.mappings); v != nil {
		p.Description = v
	}
	if v := unitField.optional(row, b.mappings); v != nil {
		p.Unit = v
	}
	if price, ok := priceField.number(row, b.mappings, true); ok {
		p.Price = price
	}
	if cost, ok := costField.number(row, b.mappings, true); ok {
		p.Cost = &cost
	}
	if stock, ok := stockField.number(row, b.mappings, true); ok {
		p.Stock = stock
	}

	if created {
		if err := repo.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
	} else if err := repo.UpdateProduct(ctx, p); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	b.cache.putProduct(p)
	return nil
}

func (b *batch) findProduct(ctx context.Context, sku *string, name string) (*repository.Product, error) {
	if hit := b.cache.product(sku, name); hit != nil {
		return hit, nil
	}
	if sku != nil {
		return notFound(b.svc.repo.FindProductBySKU(ctx, b.company.ID, *sku))
	}
	return notFound(b.svc.repo.FindProductByName(ctx, b.company.ID, name))
}

func (b *batch) importExpense(ctx context.Context, row rows.Row) error {
	if classifier.IsHeaderOrTitleRow(row) {
		return errSkipRow
	}
	amount, ok := b.amount(row)
	if !ok {
		return rowProblem(UnresolvedAmount{Field: fieldAmount, Columns: row.Describe()})
	}

	categoryName, ok := categoryField.text(row, b.mappings)
	if !ok {
		categoryName = defaultExpenseCategory
	}
	cat, err := b.category(ctx, repository.CategoryExpense, categoryName)
	if err != nil {
		return err
	}

	e := &repository.Expense{
		CompanyID:     b.company.ID,
		CategoryID:    cat.ID,
		Amount:        amount,
		Date:          b.date(row, dateField),
		Description:   b.description(row, defaultExpenseNote),
		Reference:     referenceField.optional(row, b.mappings),
		Status:        expenseStatus,
		PaymentMethod: string(b.paymentMethod(row)),
		CreatedBy:     b.createdBy(),
	}
	if raw, ok := vendorField.raw(row, b.mappings); ok {
		if vendor := normalizer.CleanVendorName(raw); vendor != "" {
			e.Vendor = &vendor
		}
	}

	if err := b.svc.repo.CreateExpense(ctx, e); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	b.amounts = append(b.amounts, amount)
	return nil
}

func (b *batch) importIncome(ctx context.Context, row rows.Row) error {
	if classifier.IsHeaderOrTitleRow(row) {
		return errSkipRow
	}
	amount, ok := b.amount(row)
	if !ok {
		return rowProblem(UnresolvedAmount{Field: fieldAmount, Columns: row.Describe()})
	}

	var categoryID *uuid.UUID
	if name, ok := categoryField.text(row, b.mappings); ok {
		cat, err := b.category(ctx, repository.CategoryIncome, name)
		if err != nil {
			return err
		}
		categoryID = &cat.ID
	}

	fallback := defaultIncomeNote
	if payer, ok := payerField.text(row, b.mappings); ok {
		fallback = payer
	}

	t := &repository.Transaction{
		CompanyID:     b.company.ID,
		Type:          repository.TransactionIncome,
		CategoryID:    categoryID,
		Amount:        amount,
		Date:          b.date(row, dateField),
		Description:   b.description(row, fallback),
		Reference:     referenceField.optional(row, b.mappings),
		PaymentMethod: string(b.paymentMethod(row)),
		CreatedBy:     b.createdBy(),
	}
	if err := b.svc.repo.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	b.amounts = append(b.amounts, amount)
	return nil
}

func (b *batch) importInvoice(ctx context.Context, row rows.Row) error {
	totalValue, ok := totalField.resolve(row, b.mappings, resolver.Numeric, false)
	if !ok {
		return rowProblem(UnresolvedAmount{Field: fieldTotal, Columns: row.Describe()})
	}
	total := totalValue.Number
	customerName, ok := customerField.text(row, b.mappings)
	if !ok {
		return rowProblem(MissingRequiredField{Field: fieldCustomer})
	}

	cust, err := b.invoiceCustomer(ctx, customerName)
	if err != nil {
		return err
	}

	tax, subtotal := decimal.Zero, decimal.Zero
	taxValue, hasTax := taxField.resolve(row, b.mappings, resolver.Numeric, true, totalValue.Column)
	if hasTax {
		tax = taxValue.Number
	}
	subtotalValue, hasSubtotal := subtotalField.resolve(row, b.mappings, resolver.Numeric, true, totalValue.Column, taxValue.Column)
	if hasSubtotal {
		subtotal = subtotalValue.Number
	}
	switch {
	case hasSubtotal && !hasTax:
		tax = total.Sub(subtotal)
	case !hasSubtotal:
		subtotal = total.Sub(tax)
	}

	n, err := b.svc.repo.NextSequence(ctx, b.company.ID, repository.SequenceInvoice)
	if err != nil {
		return fmt.Errorf("next invoice number: %w", err)
	}

	issued := b.date(row, issueDateField)
	inv := &repository.Invoice{
		CompanyID:  b.company.ID,
		CustomerID: cust.ID,
		Number:     fmt.Sprintf("INV-%06d", n),
		IssueDate:  issued,
		DueDate:    issued.AddDate(0, 0, invoiceTermDays),
		Subtotal:   subtotal,
		Tax:        tax,
		Total:      total,
		Status:     invoiceStatus,
		Notes:      notesField.optional(row, b.mappings),
		CreatedBy:  b.createdBy(),
	}
	if err := b.svc.repo.CreateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	b.amounts = append(b.amounts, total)
	return nil
}

// invoiceCustomer matches a customer whose name contains the given one,
// ignoring case, and creates it when nothing matches.
func (b *batch) invoiceCustomer(ctx context.Context, name string) (*repository.Customer, error) {
	if hit := b.cache.invoiceCustomer(name); hit != nil {
		return hit, nil
	}

	repo := b.svc.repo
	cust, err := notFound(repo.SearchCustomerByName(ctx, b.company.ID, name))
	if err != nil {
		return nil, err
	}
	if cust == nil {
		cust = &repository.Customer{CompanyID: b.company.ID, Name: name}
		if err := repo.CreateCustomer(ctx, cust); err != nil {
			return nil, fmt.Errorf("create customer: %w", err)
		}
		b.cache.putCustomer(cust)
	}
	b.cache.aliasCustomer(name, cust)
	return cust, nil
}

func (b *batch) category(ctx context.Context, kind repository.CategoryKind, name string) (*repository.Category, error) {
	if hit := b.cache.categoryFor(kind, name); hit != nil {
		return hit, nil
	}

	repo := b.svc.repo
	cat, err := notFound(repo.FindCategory(ctx, b.company.ID, kind, name))
	if err != nil {
		return nil, err
	}
	if cat == nil {
		cat = &repository.Category{CompanyID: b.company.ID, Name: name, Kind: kind}
		if err := repo.CreateCategory(ctx, cat); err != nil {
			return nil, fmt.Errorf("create category: %w", err)
		}
	}
	b.cache.putCategory(cat)
	return cat, nil
}

// amount resolves the row amount. The date column is left out so serial or
// dotted dates never win the magnitude guess.
func (b *batch) amount(row rows.Row) (decimal.Decimal, bool) {
	var skip []string
	if d, ok := dateField.resolve(row, b.mappings, resolver.Text, false); ok {
		skip = append(skip, d.Column)
	}
	v, ok := amountField.resolve(row, b.mappings, resolver.Numeric, true, skip...)
	if !ok {
		return decimal.Zero, false
	}
	return v.Number, true
}

func (b *batch) date(row rows.Row, f field) time.Time {
	raw, ok := f.raw(row, b.mappings)
	if !ok {
		return b.now
	}
	return normalizer.CoerceDate(raw, b.now)
}

func (b *batch) description(row rows.Row, fallback string) string {
	if text, ok := descriptionField.text(row, b.mappings); ok {
		return text
	}
	return fallback
}

func (b *batch) paymentMethod(row rows.Row) normalizer.PaymentMethod {
	raw, _ := paymentField.raw(row, b.mappings)
	return normalizer.CoercePaymentMethod(raw)
}
