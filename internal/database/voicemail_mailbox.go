package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// voicemailMailboxRepo implements VoicemailMailboxRepository.
type voicemailMailboxRepo struct {
	db *DB
}

// NewVoicemailMailboxRepository creates a new VoicemailMailboxRepository.
func NewVoicemailMailboxRepository(db *DB) VoicemailMailboxRepository {
	return &voicemailMailboxRepo{db: db}
}

const voicemailColumns = `id, extension, enabled, pin, name, email, ring_timeout,
	created_at, updated_at`

func (r *voicemailMailboxRepo) Create(ctx context.Context, box *models.VoicemailMailbox) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO voicemail_mailboxes (extension, enabled, pin, name, email, ring_timeout)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		box.Extension, box.Enabled, box.PIN, box.Name, box.Email, box.RingTimeout,
	)
	if err != nil {
		return fmt.Errorf("inserting voicemail mailbox: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	box.ID = id
	return nil
}

func (r *voicemailMailboxRepo) GetByExtension(ctx context.Context, extension string) (*models.VoicemailMailbox, error) {
	var b models.VoicemailMailbox
	err := r.db.QueryRowContext(ctx,
		`SELECT `+voicemailColumns+` FROM voicemail_mailboxes WHERE extension = ?`,
		extension,
	).Scan(&b.ID, &b.Extension, &b.Enabled, &b.PIN, &b.Name, &b.Email,
		&b.RingTimeout, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning voicemail mailbox: %w", err)
	}
	return &b, nil
}

func (r *voicemailMailboxRepo) List(ctx context.Context) ([]models.VoicemailMailbox, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+voicemailColumns+` FROM voicemail_mailboxes ORDER BY extension`)
	if err != nil {
		return nil, fmt.Errorf("listing voicemail mailboxes: %w", err)
	}
	defer rows.Close()

	var boxes []models.VoicemailMailbox
	for rows.Next() {
		var b models.VoicemailMailbox
		if err := rows.Scan(&b.ID, &b.Extension, &b.Enabled, &b.PIN, &b.Name,
			&b.Email, &b.RingTimeout, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning voicemail mailbox row: %w", err)
		}
		boxes = append(boxes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voicemail mailbox rows: %w", err)
	}
	return boxes, nil
}

// Upsert creates the mailbox for an extension or updates it in place.
func (r *voicemailMailboxRepo) Upsert(ctx context.Context, box *models.VoicemailMailbox) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO voicemail_mailboxes (extension, enabled, pin, name, email, ring_timeout)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(extension) DO UPDATE SET
		   enabled = excluded.enabled,
		   pin = excluded.pin,
		   name = excluded.name,
		   email = excluded.email,
		   ring_timeout = excluded.ring_timeout,
		   updated_at = datetime('now')`,
		box.Extension, box.Enabled, box.PIN, box.Name, box.Email, box.RingTimeout,
	)
	if err != nil {
		return fmt.Errorf("upserting voicemail mailbox: %w", err)
	}
	return nil
}

func (r *voicemailMailboxRepo) Delete(ctx context.Context, extension string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM voicemail_mailboxes WHERE extension = ?`, extension)
	if err != nil {
		return fmt.Errorf("deleting voicemail mailbox: %w", err)
	}
	return nil
}
