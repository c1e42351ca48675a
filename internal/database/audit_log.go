package database

import (
	"context"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// auditLogRepo implements AuditLogRepository.
type auditLogRepo struct {
	db *DB
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(db *DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Log(ctx context.Context, entry *models.AuditLog) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (username, action, object_type, object_id, details, ip_address)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Username, entry.Action, entry.ObjectType, entry.ObjectID,
		entry.Details, entry.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, limit, offset int) ([]models.AuditLog, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp, username, action, object_type, object_id, details, ip_address
		 FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Username, &e.Action,
			&e.ObjectType, &e.ObjectID, &e.Details, &e.IPAddress); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit log rows: %w", err)
	}
	return entries, total, nil
}
