package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// inboundRouteRepo implements InboundRouteRepository.
type inboundRouteRepo struct {
	db *DB
}

// NewInboundRouteRepository creates a new InboundRouteRepository.
func NewInboundRouteRepository(db *DB) InboundRouteRepository {
	return &inboundRouteRepo{db: db}
}

const inboundRouteColumns = `id, did, trunk_id, destination_extension,
	description, enabled, created_at, updated_at`

func (r *inboundRouteRepo) Create(ctx context.Context, route *models.InboundRoute) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO inbound_routes (did, trunk_id, destination_extension, description, enabled)
		 VALUES (?, ?, ?, ?, ?)`,
		route.DID, route.TrunkID, route.DestinationExtension, route.Description, route.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting inbound route: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	route.ID = id
	return nil
}

func (r *inboundRouteRepo) GetByID(ctx context.Context, id int64) (*models.InboundRoute, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+inboundRouteColumns+` FROM inbound_routes WHERE id = ?`, id))
}

func (r *inboundRouteRepo) GetByDID(ctx context.Context, did string) (*models.InboundRoute, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+inboundRouteColumns+` FROM inbound_routes WHERE did = ?`, did))
}

func (r *inboundRouteRepo) List(ctx context.Context) ([]models.InboundRoute, error) {
	return r.list(ctx, `SELECT `+inboundRouteColumns+` FROM inbound_routes ORDER BY id`)
}

func (r *inboundRouteRepo) ListEnabled(ctx context.Context) ([]models.InboundRoute, error) {
	return r.list(ctx, `SELECT `+inboundRouteColumns+` FROM inbound_routes WHERE enabled = 1 ORDER BY id`)
}

func (r *inboundRouteRepo) ListByExtension(ctx context.Context, extension string) ([]models.InboundRoute, error) {
	return r.list(ctx,
		`SELECT `+inboundRouteColumns+` FROM inbound_routes WHERE destination_extension = ? ORDER BY id`,
		extension)
}

func (r *inboundRouteRepo) Update(ctx context.Context, route *models.InboundRoute) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE inbound_routes SET did = ?, trunk_id = ?, destination_extension = ?,
		 description = ?, enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		route.DID, route.TrunkID, route.DestinationExtension, route.Description,
		route.Enabled, route.ID,
	)
	if err != nil {
		return fmt.Errorf("updating inbound route: %w", err)
	}
	return nil
}

func (r *inboundRouteRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM inbound_routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting inbound route: %w", err)
	}
	return nil
}

func (r *inboundRouteRepo) list(ctx context.Context, query string, args ...any) ([]models.InboundRoute, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inbound routes: %w", err)
	}
	defer rows.Close()

	var routes []models.InboundRoute
	for rows.Next() {
		var rt models.InboundRoute
		if err := rows.Scan(&rt.ID, &rt.DID, &rt.TrunkID, &rt.DestinationExtension,
			&rt.Description, &rt.Enabled, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound route row: %w", err)
		}
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inbound route rows: %w", err)
	}
	return routes, nil
}

func (r *inboundRouteRepo) scanOne(row *sql.Row) (*models.InboundRoute, error) {
	var rt models.InboundRoute
	err := row.Scan(&rt.ID, &rt.DID, &rt.TrunkID, &rt.DestinationExtension,
		&rt.Description, &rt.Enabled, &rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning inbound route: %w", err)
	}
	return &rt, nil
}
