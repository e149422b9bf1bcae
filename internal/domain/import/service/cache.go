package service

import (
	"strings"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
)

// batchCache remembers records matched or created earlier in the same batch
// so a repeated name resolves to one record instead of a second insert.
// It lives for a single ImportRows call and is never shared.
type batchCache struct {
	customers map[string]*repository.Customer
	vendors   map[string]*repository.Vendor
	products  map[string]*repository.Product
	category  map[string]*repository.Category
}

func newBatchCache() *batchCache {
	return &batchCache{
		customers: make(map[string]*repository.Customer),
		vendors:   make(map[string]*repository.Vendor),
		products:  make(map[string]*repository.Product),
		category:  make(map[string]*repository.Category),
	}
}

func cacheKey(kind, value string) string {
	return kind + ":" + strings.ToLower(strings.TrimSpace(value))
}

func (c *batchCache) customer(email *string, name string) *repository.Customer {
	if email != nil {
		return c.customers[cacheKey(fieldEmail, *email)]
	}
	return c.customers[cacheKey(fieldName, name)]
}

func (c *batchCache) putCustomer(cust *repository.Customer) {
	c.customers[cacheKey(fieldName, cust.Name)] = cust
	if cust.Email != nil {
		c.customers[cacheKey(fieldEmail, *cust.Email)] = cust
	}
}

// invoiceCustomer returns the customer an earlier invoice row with the same
// customer text resolved to.
func (c *batchCache) invoiceCustomer(name string) *repository.Customer {
	if hit, ok := c.customers[cacheKey(fieldCustomer, name)]; ok {
		return hit
	}
	return c.customers[cacheKey(fieldName, name)]
}

func (c *batchCache) aliasCustomer(name string, cust *repository.Customer) {
	c.customers[cacheKey(fieldCustomer, name)] = cust
}

func (c *batchCache) vendor(email *string, name string) *repository.Vendor {
	if email != nil {
		return c.vendors[cacheKey(fieldEmail, *email)]
	}
	return c.vendors[cacheKey(fieldName, name)]
}

func (c *batchCache) putVendor(v *repository.Vendor) {
	c.vendors[cacheKey(fieldName, v.Name)] = v
	if v.Email != nil {
		c.vendors[cacheKey(fieldEmail, *v.Email)] = v
	}
}

func (c *batchCache) product(sku *string, name string) *repository.Product {
	if sku != nil {
		return c.products[cacheKey(fieldSKU, *sku)]
	}
	return c.products[cacheKey(fieldName, name)]
}

func (c *batchCache) putProduct(p *repository.Product) {
	c.products[cacheKey(fieldName, p.Name)] = p
	if p.SKU != nil {
		c.products[cacheKey(fieldSKU, *p.SKU)] = p
	}
}

func (c *batchCache) categoryFor(kind repository.CategoryKind, name string) *repository.Category {
	return c.category[cacheKey(string(kind), name)]
}

func (c *batchCache) putCategory(cat *repository.Category) {
	c.category[cacheKey(string(cat.Kind), cat.Name)] = cat
}
