package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ListingJobRepositoryPG implements domain.ListingJobRepository.
type ListingJobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewListingJobRepository creates a job repository backed by PostgreSQL.
func NewListingJobRepository(pool *pgxpool.Pool) *ListingJobRepositoryPG {
	return &ListingJobRepositoryPG{pool: pool}
}

// Create inserts a new queued job.
func (r *ListingJobRepositoryPG) Create(ctx context.Context, job *domain.ListingJob) error {
	query := `
INSERT INTO listing_jobs (id, user_id, status, image_path, country_code)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Status,
		job.ImagePath,
		job.CountryCode,
	)
	return err
}

// Claim marks the oldest queued job as running and returns it. SKIP LOCKED
// lets multiple worker processes poll the same table without contention.
func (r *ListingJobRepositoryPG) Claim(ctx context.Context) (*domain.ListingJob, error) {
	query := `
UPDATE listing_jobs
SET status = 'running', updated_at = NOW()
WHERE id = (
    SELECT id FROM listing_jobs
    WHERE status = 'queued'
    ORDER BY created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, user_id, status, image_path, country_code, bundle_json, listing_json, error_message, created_at, updated_at;
`
	return scanListingJob(r.pool.QueryRow(ctx, query))
}

// Complete records the terminal state of a claimed job.
func (r *ListingJobRepositoryPG) Complete(ctx context.Context, jobID string, status domain.ListingJobStatus, errMsg string, bundleJSON, listingJSON []byte) error {
	query := `
UPDATE listing_jobs
SET status = $2,
    error_message = $3,
    bundle_json = COALESCE($4, bundle_json),
    listing_json = COALESCE($5, listing_json),
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, errMsg, nullableBytes(bundleJSON), nullableBytes(listingJSON))
	return err
}

// GetByID fetches a job by its identifier.
func (r *ListingJobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.ListingJob, error) {
	query := `
SELECT id, user_id, status, image_path, country_code, bundle_json, listing_json, error_message, created_at, updated_at
FROM listing_jobs
WHERE id = $1;
`
	return scanListingJob(r.pool.QueryRow(ctx, query, jobID))
}

func scanListingJob(row pgx.Row) (*domain.ListingJob, error) {
	var job domain.ListingJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.ImagePath,
		&job.CountryCode,
		&job.BundleJSON,
		&job.ListingJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
