package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS face_swap_jobs (
		reference_id      TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		base_image_path   TEXT NOT NULL,
		selfie_image_path TEXT NOT NULL,
		result_image_url  TEXT,
		error             TEXT,
		processing_ms     BIGINT,
		created_at        TIMESTAMP NOT NULL,
		updated_at        TIMESTAMP NOT NULL
	)
`

type jobRow struct {
	ReferenceID     string         `db:"reference_id"`
	Status          string         `db:"status"`
	BaseImagePath   string         `db:"base_image_path"`
	SelfieImagePath string         `db:"selfie_image_path"`
	ResultImageURL  sql.NullString `db:"result_image_url"`
	Error           sql.NullString `db:"error"`
	ProcessingMS    sql.NullInt64  `db:"processing_ms"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	job := &domain.Job{
		ReferenceID:     r.ReferenceID,
		Status:          domain.Status(r.Status),
		BaseImagePath:   r.BaseImagePath,
		SelfieImagePath: r.SelfieImagePath,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.ResultImageURL.Valid {
		job.ResultImageURL = &r.ResultImageURL.String
	}
	if r.Error.Valid {
		job.Error = &r.Error.String
	}
	if r.ProcessingMS.Valid {
		job.ProcessingMS = &r.ProcessingMS.Int64
	}
	return job
}

// SQLStore persists jobs in the face_swap_jobs table of a postgres or sqlite database
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLStore creates a new SQLStore instance
func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the jobs table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create face_swap_jobs table: %w", err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO face_swap_jobs (
			reference_id, status, base_image_path, selfie_image_path,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference_id) DO NOTHING
	`)

	res, err := s.db.ExecContext(ctx, query,
		job.ReferenceID,
		string(job.Status),
		job.BaseImagePath,
		job.SelfieImagePath,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobExists, job.ReferenceID)
	}

	s.logger.Debug("Job created",
		slog.String("reference_id", job.ReferenceID),
	)

	return nil
}

// Update uses optimistic locking on the status column: the row is only
// written if its status is still the one the transition was validated against.
func (s *SQLStore) Update(ctx context.Context, referenceID string, patch domain.JobPatch) error {
	var current string
	err := s.db.GetContext(ctx, &current,
		s.db.Rebind(`SELECT status FROM face_swap_jobs WHERE reference_id = ?`), referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, referenceID)
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if err := checkPatch(domain.Status(current), patch); err != nil {
		return err
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.ResultImageURL != nil {
		sets = append(sets, "result_image_url = ?")
		args = append(args, *patch.ResultImageURL)
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.ProcessingMS != nil {
		sets = append(sets, "processing_ms = ?")
		args = append(args, *patch.ProcessingMS)
	}
	args = append(args, referenceID, current)

	query := s.db.Rebind(
		"UPDATE face_swap_jobs SET " + strings.Join(sets, ", ") +
			" WHERE reference_id = ? AND status = ?")

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("Job update lost a race",
			slog.String("reference_id", referenceID),
			slog.String("expected_status", current),
		)
		return fmt.Errorf("%w: %s", domain.ErrConcurrentUpdate, referenceID)
	}

	s.logger.Debug("Job updated",
		slog.String("reference_id", referenceID),
		slog.String("from_status", current),
	)

	return nil
}

func (s *SQLStore) Get(ctx context.Context, referenceID string) (*domain.Job, bool, error) {
	query := s.db.Rebind(`
		SELECT
			reference_id, status, base_image_path, selfie_image_path,
			result_image_url, error, processing_ms, created_at, updated_at
		FROM face_swap_jobs
		WHERE reference_id = ?
	`)

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, referenceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain(), true, nil
}

func (s *SQLStore) ListPending(ctx context.Context) ([]string, error) {
	query := s.db.Rebind(`
		SELECT reference_id
		FROM face_swap_jobs
		WHERE status = ?
		ORDER BY created_at, reference_id
	`)

	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, query, string(domain.StatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return ids, nil
}
