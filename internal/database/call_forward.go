package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// callForwardRepo implements CallForwardRepository.
type callForwardRepo struct {
	db *DB
}

// NewCallForwardRepository creates a new CallForwardRepository.
func NewCallForwardRepository(db *DB) CallForwardRepository {
	return &callForwardRepo{db: db}
}

const callForwardColumns = `id, extension, forward_type, destination, ring_time,
	enabled, created_at, updated_at`

func (r *callForwardRepo) Create(ctx context.Context, fwd *models.CallForward) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_forwards (extension, forward_type, destination, ring_time, enabled)
		 VALUES (?, ?, ?, ?, ?)`,
		fwd.Extension, fwd.ForwardType, fwd.Destination, fwd.RingTime, fwd.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting call forward: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	fwd.ID = id
	return nil
}

func (r *callForwardRepo) GetByID(ctx context.Context, id int64) (*models.CallForward, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callForwardColumns+` FROM call_forwards WHERE id = ?`, id))
}

func (r *callForwardRepo) Get(ctx context.Context, extension, forwardType string) (*models.CallForward, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callForwardColumns+` FROM call_forwards
		 WHERE extension = ? AND forward_type = ?`, extension, forwardType))
}

func (r *callForwardRepo) List(ctx context.Context) ([]models.CallForward, error) {
	return r.list(ctx, `SELECT `+callForwardColumns+` FROM call_forwards ORDER BY extension, forward_type`)
}

func (r *callForwardRepo) ListEnabled(ctx context.Context) ([]models.CallForward, error) {
	return r.list(ctx,
		`SELECT `+callForwardColumns+` FROM call_forwards WHERE enabled = 1 ORDER BY extension, forward_type`)
}

func (r *callForwardRepo) ListByExtension(ctx context.Context, extension string) ([]models.CallForward, error) {
	return r.list(ctx,
		`SELECT `+callForwardColumns+` FROM call_forwards WHERE extension = ? ORDER BY forward_type`,
		extension)
}

func (r *callForwardRepo) Update(ctx context.Context, fwd *models.CallForward) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_forwards SET extension = ?, forward_type = ?, destination = ?,
		 ring_time = ?, enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		fwd.Extension, fwd.ForwardType, fwd.Destination, fwd.RingTime, fwd.Enabled, fwd.ID,
	)
	if err != nil {
		return fmt.Errorf("updating call forward: %w", err)
	}
	return nil
}

func (r *callForwardRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM call_forwards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call forward: %w", err)
	}
	return nil
}

func (r *callForwardRepo) list(ctx context.Context, query string, args ...any) ([]models.CallForward, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing call forwards: %w", err)
	}
	defer rows.Close()

	var forwards []models.CallForward
	for rows.Next() {
		var f models.CallForward
		if err := rows.Scan(&f.ID, &f.Extension, &f.ForwardType, &f.Destination,
			&f.RingTime, &f.Enabled, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning call forward row: %w", err)
		}
		forwards = append(forwards, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call forward rows: %w", err)
	}
	return forwards, nil
}

func (r *callForwardRepo) scanOne(row *sql.Row) (*models.CallForward, error) {
	var f models.CallForward
	err := row.Scan(&f.ID, &f.Extension, &f.ForwardType, &f.Destination,
		&f.RingTime, &f.Enabled, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call forward: %w", err)
	}
	return &f, nil
}
