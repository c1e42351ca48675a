package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// sipTrunkRepo implements SIPTrunkRepository.
type sipTrunkRepo struct {
	db *DB
}

// NewSIPTrunkRepository creates a new SIPTrunkRepository.
func NewSIPTrunkRepository(db *DB) SIPTrunkRepository {
	return &sipTrunkRepo{db: db}
}

const sipTrunkColumns = `id, name, provider, auth_mode, sip_server, username,
	password, from_user, caller_id, number_block, context, codecs, enabled,
	created_at, updated_at`

func (r *sipTrunkRepo) Create(ctx context.Context, trunk *models.SIPTrunk) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sip_trunks (name, provider, auth_mode, sip_server, username,
		 password, from_user, caller_id, number_block, context, codecs, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trunk.Name, trunk.Provider, trunk.AuthMode, trunk.SIPServer, trunk.Username,
		trunk.Password, trunk.FromUser, trunk.CallerID, trunk.NumberBlock,
		trunk.Context, trunk.Codecs, trunk.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting sip trunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	trunk.ID = id
	return nil
}

func (r *sipTrunkRepo) GetByID(ctx context.Context, id int64) (*models.SIPTrunk, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sipTrunkColumns+` FROM sip_trunks WHERE id = ?`, id))
}

func (r *sipTrunkRepo) GetByName(ctx context.Context, name string) (*models.SIPTrunk, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sipTrunkColumns+` FROM sip_trunks WHERE name = ?`, name))
}

func (r *sipTrunkRepo) List(ctx context.Context) ([]models.SIPTrunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sipTrunkColumns+` FROM sip_trunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing sip trunks: %w", err)
	}
	defer rows.Close()

	var trunks []models.SIPTrunk
	for rows.Next() {
		var t models.SIPTrunk
		if err := rows.Scan(&t.ID, &t.Name, &t.Provider, &t.AuthMode, &t.SIPServer,
			&t.Username, &t.Password, &t.FromUser, &t.CallerID, &t.NumberBlock,
			&t.Context, &t.Codecs, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning sip trunk row: %w", err)
		}
		trunks = append(trunks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sip trunk rows: %w", err)
	}
	return trunks, nil
}

func (r *sipTrunkRepo) Update(ctx context.Context, trunk *models.SIPTrunk) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sip_trunks SET name = ?, provider = ?, auth_mode = ?, sip_server = ?,
		 username = ?, password = ?, from_user = ?, caller_id = ?, number_block = ?,
		 context = ?, codecs = ?, enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		trunk.Name, trunk.Provider, trunk.AuthMode, trunk.SIPServer, trunk.Username,
		trunk.Password, trunk.FromUser, trunk.CallerID, trunk.NumberBlock,
		trunk.Context, trunk.Codecs, trunk.Enabled, trunk.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sip trunk: %w", err)
	}
	return nil
}

func (r *sipTrunkRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sip_trunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sip trunk: %w", err)
	}
	return nil
}

func (r *sipTrunkRepo) scanOne(row *sql.Row) (*models.SIPTrunk, error) {
	var t models.SIPTrunk
	err := row.Scan(&t.ID, &t.Name, &t.Provider, &t.AuthMode, &t.SIPServer,
		&t.Username, &t.Password, &t.FromUser, &t.CallerID, &t.NumberBlock,
		&t.Context, &t.Codecs, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sip trunk: %w", err)
	}
	return &t, nil
}
