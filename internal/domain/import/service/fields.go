package service

import (
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/resolver"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// Canonical field names. These are also the targets accepted in mappings.
const (
	fieldName        = "name"
	fieldEmail       = "email"
	fieldPhone       = "phone"
	fieldTaxID       = "taxId"
	fieldAddress     = "address"
	fieldContact     = "contactName"
	fieldSKU         = "sku"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldCost        = "cost"
	fieldStock       = "stock"
	fieldUnit        = "unit"
	fieldAmount      = "amount"
	fieldDate        = "date"
	fieldCategory    = "category"
	fieldVendor      = "vendor"
	fieldPayer       = "payer"
	fieldReference   = "reference"
	fieldPayment     = "paymentMethod"
	fieldCustomer    = "customer"
	fieldSubtotal    = "subtotal"
	fieldTax         = "tax"
	fieldTotal       = "total"
	fieldNotes       = "notes"
)

// field is one canonical field and the column labels that may hold it, most
// specific first.
type field struct {
	name    string
	keys    []string
	exclude []string
	chain   resolver.Chain
}

// namedOnly never guesses from unlabeled cells. Optional columns such as phone
// or price would otherwise pick up whatever text or number is lying around.
var namedOnly = resolver.Chain{resolver.ExplicitMapping{}, resolver.NameSimilarity{}}

func (f field) request(row rows.Row, m rows.Mapping, kind resolver.Kind, allowZero bool) resolver.Request {
	return resolver.Request{
		Row:        row,
		Mappings:   m,
		Candidates: append([]string{f.name}, f.keys...),
		Exclude:    f.exclude,
		Kind:       kind,
		AllowZero:  allowZero,
	}
}

func (f field) resolverChain() resolver.Chain {
	if f.chain != nil {
		return f.chain
	}
	return resolver.DefaultChain()
}

// resolve looks the field up, leaving out the columns in skip.
func (f field) resolve(row rows.Row, m rows.Mapping, kind resolver.Kind, allowZero bool, skip ...string) (resolver.Value, bool) {
	req := f.request(row, m, kind, allowZero)
	req.Skip = skip
	return f.resolverChain().Resolve(req)
}

func (f field) text(row rows.Row, m rows.Mapping) (string, bool) {
	v, ok := f.resolverChain().Resolve(f.request(row, m, resolver.Text, false))
	if !ok {
		return "", false
	}
	return v.Text, true
}

// optional returns nil when the field is absent.
func (f field) optional(row rows.Row, m rows.Mapping) *string {
	if s, ok := f.text(row, m); ok {
		return &s
	}
	return nil
}

func (f field) number(row rows.Row, m rows.Mapping, allowZero bool) (decimal.Decimal, bool) {
	v, ok := f.resolverChain().Resolve(f.request(row, m, resolver.Numeric, allowZero))
	if !ok {
		return decimal.Zero, false
	}
	return v.Number, true
}

func (f field) raw(row rows.Row, m rows.Mapping) (any, bool) {
	v, ok := f.resolverChain().Resolve(f.request(row, m, resolver.Text, false))
	if !ok {
		return nil, false
	}
	return v.Raw, true
}

var (
	nameField = field{
		name: fieldName,
		keys: []string{"nombre", "razon social", "razón social", "cliente", "proveedor", "producto", "empresa", "company"},
	}
	emailField = field{
		name:  fieldEmail,
		keys:  []string{"correo", "correo electronico", "e-mail", "mail"},
		chain: namedOnly,
	}
	phoneField = field{
		name:  fieldPhone,
		keys:  []string{"telefono", "teléfono", "tel", "celular", "movil", "móvil"},
		chain: namedOnly,
	}
	taxIDField = field{
		name:  fieldTaxID,
		keys:  []string{"rfc", "nif", "nit", "cif", "tax id", "vat"},
		chain: namedOnly,
	}
	addressField = field{
		name:  fieldAddress,
		keys:  []string{"direccion", "dirección", "domicilio"},
		chain: namedOnly,
	}
	contactField = field{
		name:  fieldContact,
		keys:  []string{"contacto", "contact", "persona de contacto"},
		chain: namedOnly,
	}
	skuField = field{
		name:  fieldSKU,
		keys:  []string{"codigo", "código", "clave", "code"},
		chain: namedOnly,
	}
	productDescriptionField = field{
		name:  fieldDescription,
		keys:  []string{"descripcion", "descripción", "detalle"},
		chain: namedOnly,
	}
	priceField = field{
		name:    fieldPrice,
		keys:    []string{"precio", "precio venta", "precio unitario", "unit price"},
		exclude: []string{"costo", "cost"},
		chain:   namedOnly,
	}
	costField = field{
		name:  fieldCost,
		keys:  []string{"costo", "precio compra", "coste"},
		chain: namedOnly,
	}
	stockField = field{
		name:  fieldStock,
		keys:  []string{"existencia", "existencias", "inventario", "cantidad", "quantity", "qty"},
		chain: namedOnly,
	}
	unitField = field{
		name:  fieldUnit,
		keys:  []string{"unidad", "unidad de medida", "uom"},
		chain: namedOnly,
	}

	amountField = field{
		name:    fieldAmount,
		keys:    []string{"monto", "importe", "cantidad", "valor", "cargo", "abono", "gasto", "ingreso", "total"},
		exclude: []string{"subtotal", "iva", "impuesto"},
	}
	descriptionField = field{
		name: fieldDescription,
		keys: []string{"descripcion", "descripción", "concepto", "detalle", "nombre", "memo"},
	}
	dateField = field{
		name:  fieldDate,
		keys:  []string{"fecha", "fecha de pago", "dia", "día"},
		chain: namedOnly,
	}
	categoryField = field{
		name:  fieldCategory,
		keys:  []string{"categoria", "categoría", "rubro", "clasificacion", "clasificación"},
		chain: namedOnly,
	}
	vendorField = field{
		name:  fieldVendor,
		keys:  []string{"proveedor", "comercio", "beneficiario", "payee", "supplier"},
		chain: namedOnly,
	}
	payerField = field{
		name:  fieldPayer,
		keys:  []string{"cliente", "origen", "pagador", "payer", "customer"},
		chain: namedOnly,
	}
	referenceField = field{
		name:  fieldReference,
		keys:  []string{"referencia", "folio", "numero", "número", "ref"},
		chain: namedOnly,
	}
	paymentField = field{
		name:  fieldPayment,
		keys:  []string{"metodo de pago", "método de pago", "forma de pago", "metodo", "método", "payment"},
		chain: namedOnly,
	}

	customerField = field{
		name:  fieldCustomer,
		keys:  []string{"cliente", "nombre cliente", "razon social", "razón social", "client"},
		chain: resolver.Chain{resolver.ExplicitMapping{}, resolver.NameSimilarity{}, resolver.PlaceholderScan{}},
	}
	issueDateField = field{
		name:  fieldDate,
		keys:  []string{"fecha", "fecha emision", "fecha de emisión", "issue date", "emitida"},
		chain: namedOnly,
	}
	subtotalField = field{
		name:  fieldSubtotal,
		keys:  []string{"base", "base imponible", "neto"},
		chain: namedOnly,
	}
	taxField = field{
		name:  fieldTax,
		keys:  []string{"iva", "impuesto", "impuestos"},
		chain: namedOnly,
	}
	totalField = field{
		name:    fieldTotal,
		keys:    []string{"monto", "importe total", "total factura", "monto total"},
		exclude: []string{"subtotal"},
	}
	notesField = field{
		name:  fieldNotes,
		keys:  []string{"notas", "observaciones", "comentarios", "comments"},
		chain: namedOnly,
	}
)

// entityFields lists, per entity type, the fields the analyzer suggests
// columns for.
var entityFields = map[EntityType][]field{
	EntityCustomers: {nameField, emailField, phoneField, taxIDField, addressField},
	EntityVendors:   {nameField, emailField, phoneField, taxIDField, addressField, contactField},
	EntityProducts:  {nameField, skuField, productDescriptionField, priceField, costField, stockField, unitField},
	EntityExpenses:  {amountField, dateField, descriptionField, categoryField, vendorField, referenceField, paymentField},
	EntityIncome:    {amountField, dateField, descriptionField, categoryField, payerField, referenceField, paymentField},
	EntityInvoices:  {customerField, totalField, issueDateField, subtotalField, taxField, notesField},
}
