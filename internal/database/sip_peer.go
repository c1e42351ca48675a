package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// sipPeerRepo implements SIPPeerRepository.
type sipPeerRepo struct {
	db *DB
}

// NewSIPPeerRepository creates a new SIPPeerRepository.
func NewSIPPeerRepository(db *DB) SIPPeerRepository {
	return &sipPeerRepo{db: db}
}

const sipPeerColumns = `id, extension, secret, caller_id, context, codecs,
	outbound_cid, pai, blf_enabled, pickup_group, enabled, created_at, updated_at`

func (r *sipPeerRepo) Create(ctx context.Context, peer *models.SIPPeer) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sip_peers (extension, secret, caller_id, context, codecs,
		 outbound_cid, pai, blf_enabled, pickup_group, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		peer.Extension, peer.Secret, peer.CallerID, peer.Context, peer.Codecs,
		peer.OutboundCID, peer.PAI, peer.BLFEnabled, peer.PickupGroup, peer.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting sip peer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	peer.ID = id
	return nil
}

func (r *sipPeerRepo) GetByID(ctx context.Context, id int64) (*models.SIPPeer, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sipPeerColumns+` FROM sip_peers WHERE id = ?`, id))
}

func (r *sipPeerRepo) GetByExtension(ctx context.Context, extension string) (*models.SIPPeer, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sipPeerColumns+` FROM sip_peers WHERE extension = ?`, extension))
}

func (r *sipPeerRepo) List(ctx context.Context) ([]models.SIPPeer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sipPeerColumns+` FROM sip_peers ORDER BY extension`)
	if err != nil {
		return nil, fmt.Errorf("listing sip peers: %w", err)
	}
	defer rows.Close()

	var peers []models.SIPPeer
	for rows.Next() {
		var p models.SIPPeer
		if err := scanSIPPeer(rows, &p); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sip peer rows: %w", err)
	}
	return peers, nil
}

func (r *sipPeerRepo) Update(ctx context.Context, peer *models.SIPPeer) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sip_peers SET extension = ?, secret = ?, caller_id = ?, context = ?,
		 codecs = ?, outbound_cid = ?, pai = ?, blf_enabled = ?, pickup_group = ?,
		 enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		peer.Extension, peer.Secret, peer.CallerID, peer.Context, peer.Codecs,
		peer.OutboundCID, peer.PAI, peer.BLFEnabled, peer.PickupGroup, peer.Enabled,
		peer.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sip peer: %w", err)
	}
	return nil
}

func (r *sipPeerRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sip_peers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sip peer: %w", err)
	}
	return nil
}

func (r *sipPeerRepo) scanOne(row *sql.Row) (*models.SIPPeer, error) {
	var p models.SIPPeer
	err := row.Scan(&p.ID, &p.Extension, &p.Secret, &p.CallerID, &p.Context,
		&p.Codecs, &p.OutboundCID, &p.PAI, &p.BLFEnabled, &p.PickupGroup,
		&p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sip peer: %w", err)
	}
	return &p, nil
}

func scanSIPPeer(rows *sql.Rows, p *models.SIPPeer) error {
	if err := rows.Scan(&p.ID, &p.Extension, &p.Secret, &p.CallerID, &p.Context,
		&p.Codecs, &p.OutboundCID, &p.PAI, &p.BLFEnabled, &p.PickupGroup,
		&p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("scanning sip peer row: %w", err)
	}
	return nil
}
