package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
)

// MockImportRepository is an in-memory ImportRepository. Setting failOn[op]
// makes the named operation return that error.
type MockImportRepository struct {
	mu sync.Mutex

	companies    map[uuid.UUID]*repository.Company
	members      map[uuid.UUID]uuid.UUID // user -> company
	customers    []*repository.Customer
	vendors      []*repository.Vendor
	products     []*repository.Product
	categories   []*repository.Category
	expenses     []*repository.Expense
	transactions []*repository.Transaction
	invoices     []*repository.Invoice
	sequences    map[string]int64
	jobs         map[uuid.UUID]*repository.ImportJob
	mappings     map[string]*repository.MappingTemplate
	touched      []uuid.UUID

	failOn map[string]error
	// failAfter lets the first n calls of an operation through before failOn applies.
	failAfter map[string]int
	calls     map[string]int
}

func NewMockImportRepository() *MockImportRepository {
	return &MockImportRepository{
		companies: make(map[uuid.UUID]*repository.Company),
		members:   make(map[uuid.UUID]uuid.UUID),
		sequences: make(map[string]int64),
		jobs:      make(map[uuid.UUID]*repository.ImportJob),
		mappings:  make(map[string]*repository.MappingTemplate),
		failOn:    make(map[string]error),
		failAfter: make(map[string]int),
		calls:     make(map[string]int),
	}
}

func (m *MockImportRepository) addCompany(userID uuid.UUID, currency string) *repository.Company {
	c := &repository.Company{ID: uuid.New(), Name: "Ferretería López", Currency: currency}
	m.companies[c.ID] = c
	m.members[userID] = c.ID
	return c
}

// fail must be called with m.mu held.
func (m *MockImportRepository) fail(op string) error {
	m.calls[op]++
	err, ok := m.failOn[op]
	if !ok {
		return nil
	}
	if m.calls[op] <= m.failAfter[op] {
		return nil
	}
	return err
}

func (m *MockImportRepository) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("Ping")
}

func (m *MockImportRepository) GetCompanyForUser(ctx context.Context, companyID, userID uuid.UUID) (*repository.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetCompanyForUser"); err != nil {
		return nil, err
	}
	c, ok := m.companies[companyID]
	if !ok || m.members[userID] != companyID {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *MockImportRepository) FindCustomerByEmail(ctx context.Context, companyID uuid.UUID, email string) (*repository.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindCustomerByEmail"); err != nil {
		return nil, err
	}
	for _, c := range m.customers {
		if c.CompanyID == companyID && c.Email != nil && strings.EqualFold(*c.Email, email) {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) FindCustomerByName(ctx context.Context, companyID uuid.UUID, name string) (*repository.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindCustomerByName"); err != nil {
		return nil, err
	}
	for _, c := range m.customers {
		if c.CompanyID == companyID && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) SearchCustomerByName(ctx context.Context, companyID uuid.UUID, fragment string) (*repository.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SearchCustomerByName"); err != nil {
		return nil, err
	}
	var matches []*repository.Customer
	for _, c := range m.customers {
		if c.CompanyID == companyID && strings.Contains(strings.ToLower(c.Name), strings.ToLower(fragment)) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.SliceStable(matches, func(i, j int) bool { return len(matches[i].Name) < len(matches[j].Name) })
	return matches[0], nil
}

func (m *MockImportRepository) CreateCustomer(ctx context.Context, c *repository.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCustomer"); err != nil {
		return err
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.customers = append(m.customers, c)
	return nil
}

func (m *MockImportRepository) UpdateCustomer(ctx context.Context, c *repository.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateCustomer"); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MockImportRepository) FindVendorByEmail(ctx context.Context, companyID uuid.UUID, email string) (*repository.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindVendorByEmail"); err != nil {
		return nil, err
	}
	for _, v := range m.vendors {
		if v.CompanyID == companyID && v.Email != nil && strings.EqualFold(*v.Email, email) {
			return v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) FindVendorByName(ctx context.Context, companyID uuid.UUID, name string) (*repository.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindVendorByName"); err != nil {
		return nil, err
	}
	for _, v := range m.vendors {
		if v.CompanyID == companyID && strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) CreateVendor(ctx context.Context, v *repository.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateVendor"); err != nil {
		return err
	}
	v.ID = uuid.New()
	m.vendors = append(m.vendors, v)
	return nil
}

func (m *MockImportRepository) UpdateVendor(ctx context.Context, v *repository.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("UpdateVendor")
}

func (m *MockImportRepository) FindProductBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*repository.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindProductBySKU"); err != nil {
		return nil, err
	}
	for _, p := range m.products {
		if p.CompanyID == companyID && p.SKU != nil && strings.EqualFold(*p.SKU, sku) {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) FindProductByName(ctx context.Context, companyID uuid.UUID, name string) (*repository.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindProductByName"); err != nil {
		return nil, err
	}
	for _, p := range m.products {
		if p.CompanyID == companyID && strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) CreateProduct(ctx context.Context, p *repository.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateProduct"); err != nil {
		return err
	}
	p.ID = uuid.New()
	m.products = append(m.products, p)
	return nil
}

func (m *MockImportRepository) UpdateProduct(ctx context.Context, p *repository.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("UpdateProduct")
}

func (m *MockImportRepository) FindCategory(ctx context.Context, companyID uuid.UUID, kind repository.CategoryKind, name string) (*repository.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindCategory"); err != nil {
		return nil, err
	}
	for _, c := range m.categories {
		if c.CompanyID == companyID && c.Kind == kind && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *MockImportRepository) CreateCategory(ctx context.Context, c *repository.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCategory"); err != nil {
		return err
	}
	c.ID = uuid.New()
	m.categories = append(m.categories, c)
	return nil
}

func (m *MockImportRepository) CreateExpense(ctx context.Context, e *repository.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateExpense"); err != nil {
		return err
	}
	e.ID = uuid.New()
	m.expenses = append(m.expenses, e)
	return nil
}

func (m *MockImportRepository) CreateTransaction(ctx context.Context, t *repository.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateTransaction"); err != nil {
		return err
	}
	t.ID = uuid.New()
	m.transactions = append(m.transactions, t)
	return nil
}

func (m *MockImportRepository) CreateInvoice(ctx context.Context, inv *repository.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateInvoice"); err != nil {
		return err
	}
	inv.ID = uuid.New()
	m.invoices = append(m.invoices, inv)
	return nil
}

func (m *MockImportRepository) NextSequence(ctx context.Context, companyID uuid.UUID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("NextSequence"); err != nil {
		return 0, err
	}
	key := companyID.String() + "/" + name
	m.sequences[key] = max(m.sequences[key]+1, m.highestNumber(companyID, name)+1)
	return m.sequences[key], nil
}

// highestNumber mirrors the seed the Postgres counter takes from stored numbers.
func (m *MockImportRepository) highestNumber(companyID uuid.UUID, name string) int64 {
	var numbers []string
	switch name {
	case repository.SequenceVendor:
		for _, v := range m.vendors {
			if v.CompanyID == companyID {
				numbers = append(numbers, strings.TrimPrefix(v.Number, "VND-"))
			}
		}
	case repository.SequenceInvoice:
		for _, inv := range m.invoices {
			if inv.CompanyID == companyID {
				numbers = append(numbers, strings.TrimPrefix(inv.Number, "INV-"))
			}
		}
	}
	var highest int64
	for _, s := range numbers {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (m *MockImportRepository) ReconcileSequences(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 0, m.fail("ReconcileSequences")
}

func (m *MockImportRepository) CreateImportJob(ctx context.Context, job *repository.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateImportJob"); err != nil {
		return err
	}
	job.ID = uuid.New()
	job.Status = repository.JobRunning
	job.StartedAt = time.Now()
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *MockImportRepository) FinishImportJob(ctx context.Context, job *repository.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FinishImportJob"); err != nil {
		return err
	}
	now := time.Now()
	job.FinishedAt = &now
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *MockImportRepository) GetImportJob(ctx context.Context, companyID, jobID uuid.UUID) (*repository.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetImportJob"); err != nil {
		return nil, err
	}
	job, ok := m.jobs[jobID]
	if !ok || job.CompanyID != companyID {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (m *MockImportRepository) ListImportJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*repository.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListImportJobs"); err != nil {
		return nil, err
	}
	var jobs []*repository.ImportJob
	for _, j := range m.jobs {
		if j.CompanyID == companyID {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (m *MockImportRepository) PruneImportJobs(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 0, m.fail("PruneImportJobs")
}

func mappingKey(companyID uuid.UUID, entityType, fingerprint string) string {
	return companyID.String() + "/" + entityType + "/" + fingerprint
}

func (m *MockImportRepository) SaveMapping(ctx context.Context, t *repository.MappingTemplate) (*repository.MappingTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveMapping"); err != nil {
		return nil, err
	}
	key := mappingKey(t.CompanyID, t.EntityType, t.Fingerprint)
	stored := *t
	if existing, ok := m.mappings[key]; ok {
		stored.ID = existing.ID
		stored.UseCount = existing.UseCount
	} else {
		stored.ID = uuid.New()
	}
	m.mappings[key] = &stored
	return &stored, nil
}

func (m *MockImportRepository) GetMapping(ctx context.Context, companyID uuid.UUID, entityType, fingerprint string) (*repository.MappingTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetMapping"); err != nil {
		return nil, err
	}
	t, ok := m.mappings[mappingKey(companyID, entityType, fingerprint)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *MockImportRepository) TouchMapping(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TouchMapping"); err != nil {
		return err
	}
	m.touched = append(m.touched, id)
	return nil
}

var _ repository.ImportRepository = (*MockImportRepository)(nil)
