package repository

import (
	"context"

	"github.com/google/uuid"
)

// SaveMapping creates or replaces the company's mapping for a header fingerprint
func (r *PostgresImportRepository) SaveMapping(ctx context.Context, m *MappingTemplate) (*MappingTemplate, error) {
	query := `
		INSERT INTO import_mappings (id, company_id, entity_type, fingerprint, headers, mappings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, entity_type, fingerprint) DO UPDATE SET
			headers = EXCLUDED.headers,
			mappings = EXCLUDED.mappings,
			updated_at = now()
		RETURNING id, company_id, entity_type, fingerprint, headers, mappings, use_count, created_at, updated_at`

	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	headers := m.Headers
	if headers == nil {
		headers = []string{}
	}

	var result MappingTemplate
	err := r.db.QueryRow(ctx, query, id, m.CompanyID, m.EntityType, m.Fingerprint, headers, m.Mappings).Scan(
		&result.ID, &result.CompanyID, &result.EntityType, &result.Fingerprint, &result.Headers,
		&result.Mappings, &result.UseCount, &result.CreatedAt, &result.UpdatedAt,
	)
	if err != nil {
		return nil, storeErr("save mapping", err)
	}
	return &result, nil
}

// GetMapping returns the saved mapping for a header fingerprint
func (r *PostgresImportRepository) GetMapping(ctx context.Context, companyID uuid.UUID, entityType, fingerprint string) (*MappingTemplate, error) {
	query := `
		SELECT id, company_id, entity_type, fingerprint, headers, mappings, use_count, created_at, updated_at
		FROM import_mappings
		WHERE company_id = $1 AND entity_type = $2 AND fingerprint = $3`

	var m MappingTemplate
	err := r.db.QueryRow(ctx, query, companyID, entityType, fingerprint).Scan(
		&m.ID, &m.CompanyID, &m.EntityType, &m.Fingerprint, &m.Headers,
		&m.Mappings, &m.UseCount, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, storeErr("get mapping", err)
	}
	return &m, nil
}

// TouchMapping bumps the usage counter after an import applied the mapping
func (r *PostgresImportRepository) TouchMapping(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE import_mappings SET use_count = use_count + 1, updated_at = now() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return storeErr("touch mapping", err)
}
