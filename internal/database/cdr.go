package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// cdrRepo implements CDRRepository.
type cdrRepo struct {
	db *DB
}

// NewCDRRepository creates a new CDRRepository.
func NewCDRRepository(db *DB) CDRRepository {
	return &cdrRepo{db: db}
}

const cdrColumns = `id, call_date, clid, src, dst, dcontext, channel, dstchannel,
	lastapp, lastdata, duration, billsec, disposition, amaflags, uniqueid, userfield`

func (r *cdrRepo) Create(ctx context.Context, cdr *models.CDR) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO cdr (call_date, clid, src, dst, dcontext, channel, dstchannel,
		 lastapp, lastdata, duration, billsec, disposition, amaflags, uniqueid, userfield)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cdr.CallDate, cdr.CLID, cdr.Src, cdr.Dst, cdr.DContext, cdr.Channel,
		cdr.DstChannel, cdr.LastApp, cdr.LastData, cdr.Duration, cdr.BillSec,
		cdr.Disposition, cdr.AMAFlags, cdr.UniqueID, cdr.UserField,
	)
	if err != nil {
		return fmt.Errorf("inserting cdr: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	cdr.ID = id
	return nil
}

// List returns matching records newest first plus the total match count.
func (r *cdrRepo) List(ctx context.Context, filter CDRListFilter) ([]models.CDR, int, error) {
	var conds []string
	var args []any

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		conds = append(conds, `(clid LIKE ? OR src LIKE ? OR dst LIKE ?)`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Disposition != "" {
		conds = append(conds, `disposition = ?`)
		args = append(args, filter.Disposition)
	}
	if filter.StartDate != "" {
		conds = append(conds, `call_date >= ?`)
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		conds = append(conds, `call_date <= ?`)
		args = append(args, filter.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cdr`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting cdrs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + cdrColumns + ` FROM cdr` + where + ` ORDER BY call_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	records, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *cdrRepo) ListRecent(ctx context.Context, limit int) ([]models.CDR, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.list(ctx,
		`SELECT `+cdrColumns+` FROM cdr ORDER BY call_date DESC, id DESC LIMIT ?`, limit)
}

func (r *cdrRepo) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM cdr GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("counting cdrs by disposition: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disposition string
		var count int64
		if err := rows.Scan(&disposition, &count); err != nil {
			return nil, fmt.Errorf("scanning disposition count: %w", err)
		}
		counts[disposition] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating disposition counts: %w", err)
	}
	return counts, nil
}

func (r *cdrRepo) list(ctx context.Context, query string, args ...any) ([]models.CDR, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cdrs: %w", err)
	}
	defer rows.Close()

	var records []models.CDR
	for rows.Next() {
		var c models.CDR
		if err := rows.Scan(&c.ID, &c.CallDate, &c.CLID, &c.Src, &c.Dst, &c.DContext,
			&c.Channel, &c.DstChannel, &c.LastApp, &c.LastData, &c.Duration,
			&c.BillSec, &c.Disposition, &c.AMAFlags, &c.UniqueID, &c.UserField); err != nil {
			return nil, fmt.Errorf("scanning cdr row: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cdr rows: %w", err)
	}
	return records, nil
}
