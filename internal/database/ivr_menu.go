package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// ivrMenuRepo implements IVRMenuRepository.
type ivrMenuRepo struct {
	db *DB
}

// NewIVRMenuRepository creates a new IVRMenuRepository.
func NewIVRMenuRepository(db *DB) IVRMenuRepository {
	return &ivrMenuRepo{db: db}
}

const ivrMenuColumns = `id, name, extension, prompt, timeout_seconds,
	timeout_destination, retries, inbound_trunk_id, inbound_did, enabled,
	created_at, updated_at`

func (r *ivrMenuRepo) Create(ctx context.Context, menu *models.IVRMenu) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ivr_menus (name, extension, prompt, timeout_seconds,
		 timeout_destination, retries, inbound_trunk_id, inbound_did, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		menu.Name, menu.Extension, menu.Prompt, menu.TimeoutSeconds,
		menu.TimeoutDestination, menu.Retries, menu.InboundTrunkID,
		menu.InboundDID, menu.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting ivr menu: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	menu.ID = id

	if err := replaceIVROptions(ctx, tx, id, menu.Options); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ivr menu: %w", err)
	}
	return nil
}

func (r *ivrMenuRepo) GetByID(ctx context.Context, id int64) (*models.IVRMenu, error) {
	return r.getOne(ctx, `SELECT `+ivrMenuColumns+` FROM ivr_menus WHERE id = ?`, id)
}

func (r *ivrMenuRepo) GetByExtension(ctx context.Context, extension string) (*models.IVRMenu, error) {
	return r.getOne(ctx, `SELECT `+ivrMenuColumns+` FROM ivr_menus WHERE extension = ?`, extension)
}

func (r *ivrMenuRepo) GetByName(ctx context.Context, name string) (*models.IVRMenu, error) {
	return r.getOne(ctx, `SELECT `+ivrMenuColumns+` FROM ivr_menus WHERE name = ?`, name)
}

func (r *ivrMenuRepo) List(ctx context.Context) ([]models.IVRMenu, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ivrMenuColumns+` FROM ivr_menus ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing ivr menus: %w", err)
	}
	defer rows.Close()

	var menus []models.IVRMenu
	for rows.Next() {
		var m models.IVRMenu
		if err := rows.Scan(&m.ID, &m.Name, &m.Extension, &m.Prompt, &m.TimeoutSeconds,
			&m.TimeoutDestination, &m.Retries, &m.InboundTrunkID, &m.InboundDID,
			&m.Enabled, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning ivr menu row: %w", err)
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ivr menu rows: %w", err)
	}

	for i := range menus {
		opts, err := r.loadOptions(ctx, menus[i].ID)
		if err != nil {
			return nil, err
		}
		menus[i].Options = opts
	}
	return menus, nil
}

func (r *ivrMenuRepo) Update(ctx context.Context, menu *models.IVRMenu) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE ivr_menus SET name = ?, extension = ?, prompt = ?, timeout_seconds = ?,
		 timeout_destination = ?, retries = ?, inbound_trunk_id = ?, inbound_did = ?,
		 enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		menu.Name, menu.Extension, menu.Prompt, menu.TimeoutSeconds,
		menu.TimeoutDestination, menu.Retries, menu.InboundTrunkID, menu.InboundDID,
		menu.Enabled, menu.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ivr menu: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ivr_options WHERE menu_id = ?`, menu.ID); err != nil {
		return fmt.Errorf("clearing ivr options: %w", err)
	}
	if err := replaceIVROptions(ctx, tx, menu.ID, menu.Options); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ivr menu update: %w", err)
	}
	return nil
}

func (r *ivrMenuRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ivr_menus WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ivr menu: %w", err)
	}
	return nil
}

func (r *ivrMenuRepo) getOne(ctx context.Context, query string, arg any) (*models.IVRMenu, error) {
	var m models.IVRMenu
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Extension,
		&m.Prompt, &m.TimeoutSeconds, &m.TimeoutDestination, &m.Retries,
		&m.InboundTrunkID, &m.InboundDID, &m.Enabled, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ivr menu: %w", err)
	}

	opts, err := r.loadOptions(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.Options = opts
	return &m, nil
}

func (r *ivrMenuRepo) loadOptions(ctx context.Context, menuID int64) ([]models.IVROption, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT digit, destination FROM ivr_options WHERE menu_id = ? ORDER BY position, id`,
		menuID)
	if err != nil {
		return nil, fmt.Errorf("loading ivr options: %w", err)
	}
	defer rows.Close()

	var opts []models.IVROption
	for rows.Next() {
		var o models.IVROption
		if err := rows.Scan(&o.Digit, &o.Destination); err != nil {
			return nil, fmt.Errorf("scanning ivr option: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ivr options: %w", err)
	}
	return opts, nil
}

func replaceIVROptions(ctx context.Context, tx *sql.Tx, menuID int64, opts []models.IVROption) error {
	for i, o := range opts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ivr_options (menu_id, digit, destination, position) VALUES (?, ?, ?, ?)`,
			menuID, o.Digit, o.Destination, i); err != nil {
			return fmt.Errorf("inserting ivr option: %w", err)
		}
	}
	return nil
}
