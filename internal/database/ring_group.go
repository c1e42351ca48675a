package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// ringGroupRepo implements RingGroupRepository.
type ringGroupRepo struct {
	db *DB
}

// NewRingGroupRepository creates a new RingGroupRepository.
func NewRingGroupRepository(db *DB) RingGroupRepository {
	return &ringGroupRepo{db: db}
}

const ringGroupColumns = `id, name, extension, strategy, ring_time,
	inbound_trunk_id, inbound_did, enabled, created_at, updated_at`

func (r *ringGroupRepo) Create(ctx context.Context, group *models.RingGroup) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ring_groups (name, extension, strategy, ring_time,
		 inbound_trunk_id, inbound_did, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.Name, group.Extension, group.Strategy, group.RingTime,
		group.InboundTrunkID, group.InboundDID, group.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting ring group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	group.ID = id

	if err := replaceRingGroupMembers(ctx, tx, id, group.Members); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ring group: %w", err)
	}
	return nil
}

func (r *ringGroupRepo) GetByID(ctx context.Context, id int64) (*models.RingGroup, error) {
	return r.getOne(ctx, `SELECT `+ringGroupColumns+` FROM ring_groups WHERE id = ?`, id)
}

func (r *ringGroupRepo) GetByExtension(ctx context.Context, extension string) (*models.RingGroup, error) {
	return r.getOne(ctx, `SELECT `+ringGroupColumns+` FROM ring_groups WHERE extension = ?`, extension)
}

func (r *ringGroupRepo) GetByName(ctx context.Context, name string) (*models.RingGroup, error) {
	return r.getOne(ctx, `SELECT `+ringGroupColumns+` FROM ring_groups WHERE name = ?`, name)
}

func (r *ringGroupRepo) List(ctx context.Context) ([]models.RingGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ringGroupColumns+` FROM ring_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing ring groups: %w", err)
	}
	defer rows.Close()

	var groups []models.RingGroup
	for rows.Next() {
		var g models.RingGroup
		if err := scanRingGroup(rows, &g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ring group rows: %w", err)
	}

	for i := range groups {
		members, err := r.loadMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func (r *ringGroupRepo) Update(ctx context.Context, group *models.RingGroup) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE ring_groups SET name = ?, extension = ?, strategy = ?, ring_time = ?,
		 inbound_trunk_id = ?, inbound_did = ?, enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		group.Name, group.Extension, group.Strategy, group.RingTime,
		group.InboundTrunkID, group.InboundDID, group.Enabled, group.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ring group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ring_group_members WHERE group_id = ?`, group.ID); err != nil {
		return fmt.Errorf("clearing ring group members: %w", err)
	}
	if err := replaceRingGroupMembers(ctx, tx, group.ID, group.Members); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ring group update: %w", err)
	}
	return nil
}

func (r *ringGroupRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ring_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ring group: %w", err)
	}
	return nil
}

func (r *ringGroupRepo) getOne(ctx context.Context, query string, arg any) (*models.RingGroup, error) {
	var g models.RingGroup
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&g.ID, &g.Name, &g.Extension,
		&g.Strategy, &g.RingTime, &g.InboundTrunkID, &g.InboundDID, &g.Enabled,
		&g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ring group: %w", err)
	}

	members, err := r.loadMembers(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return &g, nil
}

func (r *ringGroupRepo) loadMembers(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT extension FROM ring_group_members WHERE group_id = ? ORDER BY position, id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("loading ring group members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var ext string
		if err := rows.Scan(&ext); err != nil {
			return nil, fmt.Errorf("scanning ring group member: %w", err)
		}
		members = append(members, ext)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ring group members: %w", err)
	}
	return members, nil
}

func replaceRingGroupMembers(ctx context.Context, tx *sql.Tx, groupID int64, members []string) error {
	for i, ext := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ring_group_members (group_id, extension, position) VALUES (?, ?, ?)`,
			groupID, ext, i); err != nil {
			return fmt.Errorf("inserting ring group member: %w", err)
		}
	}
	return nil
}

func scanRingGroup(rows *sql.Rows, g *models.RingGroup) error {
	if err := rows.Scan(&g.ID, &g.Name, &g.Extension, &g.Strategy, &g.RingTime,
		&g.InboundTrunkID, &g.InboundDID, &g.Enabled, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return fmt.Errorf("scanning ring group row: %w", err)
	}
	return nil
}
