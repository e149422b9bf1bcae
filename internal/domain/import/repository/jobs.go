package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, company_id, user_id, entity_type, file_id, file_name, fingerprint, status,
	rows_total, rows_imported, rows_skipped, rows_failed, errors, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ImportJob, error) {
	var j ImportJob
	err := row.Scan(&j.ID, &j.CompanyID, &j.UserID, &j.EntityType, &j.FileID, &j.FileName, &j.Fingerprint,
		&j.Status, &j.RowsTotal, &j.RowsImported, &j.RowsSkipped, &j.RowsFailed, &j.Errors, &j.StartedAt,
		&j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateImportJob records the start of an import
func (r *PostgresImportRepository) CreateImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, company_id, user_id, entity_type, file_id, file_name, fingerprint, status, rows_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING started_at`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobRunning
	}
	err := r.db.QueryRow(ctx, query, job.ID, job.CompanyID, job.UserID, job.EntityType, job.FileID,
		job.FileName, job.Fingerprint, job.Status, job.RowsTotal).Scan(&job.StartedAt)
	return storeErr("create import job", err)
}

// FinishImportJob stores the final counters and row errors
func (r *PostgresImportRepository) FinishImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		UPDATE import_jobs
		SET status = $2, rows_imported = $3, rows_skipped = $4, rows_failed = $5, errors = $6, finished_at = now()
		WHERE id = $1
		RETURNING finished_at`

	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	err := r.db.QueryRow(ctx, query, job.ID, job.Status, job.RowsImported, job.RowsSkipped, job.RowsFailed, errs).
		Scan(&job.FinishedAt)
	return storeErr("finish import job", err)
}

// GetImportJob returns one job scoped to its company
func (r *PostgresImportRepository) GetImportJob(ctx context.Context, companyID, jobID uuid.UUID) (*ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE id = $1 AND company_id = $2`
	job, err := scanJob(r.db.QueryRow(ctx, query, jobID, companyID))
	if err != nil {
		return nil, storeErr("get import job", err)
	}
	return job, nil
}

// ListImportJobs returns the newest jobs first
func (r *PostgresImportRepository) ListImportJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*ImportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE company_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, storeErr("list import jobs", err)
	}
	defer rows.Close()

	var jobs []*ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeErr("scan import job", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, storeErr("list import jobs", rows.Err())
}

// PruneImportJobs deletes finished jobs started before the cutoff
func (r *PostgresImportRepository) PruneImportJobs(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM import_jobs WHERE started_at < $1 AND status <> 'RUNNING'`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, storeErr("prune import jobs", err)
	}
	return tag.RowsAffected(), nil
}
