package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// contactRepo implements ContactRepository.
type contactRepo struct {
	db *DB
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *DB) ContactRepository {
	return &contactRepo{db: db}
}

const contactColumns = `id, name, internal_extension, external_number, company,
	tag, note, owner_extension, created_at, updated_at`

func (r *contactRepo) Create(ctx context.Context, contact *models.Contact) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO contacts (name, internal_extension, external_number, company,
		 tag, note, owner_extension)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contact.Name, contact.InternalExtension, contact.ExternalNumber,
		contact.Company, contact.Tag, contact.Note, contact.OwnerExtension,
	)
	if err != nil {
		return fmt.Errorf("inserting contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	contact.ID = id
	return nil
}

func (r *contactRepo) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	var c models.Contact
	err := r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.InternalExtension, &c.ExternalNumber, &c.Company,
		&c.Tag, &c.Note, &c.OwnerExtension, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}
	return &c, nil
}

// List returns global contacts plus contacts owned by the given extension.
// An empty ownerExtension returns global contacts only.
func (r *contactRepo) List(ctx context.Context, ownerExtension string) ([]models.Contact, error) {
	return r.list(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE owner_extension = '' OR owner_extension = ? ORDER BY name`,
		ownerExtension)
}

func (r *contactRepo) ListGlobal(ctx context.Context) ([]models.Contact, error) {
	return r.list(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_extension = '' ORDER BY name`)
}

func (r *contactRepo) Update(ctx context.Context, contact *models.Contact) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, internal_extension = ?, external_number = ?,
		 company = ?, tag = ?, note = ?, owner_extension = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		contact.Name, contact.InternalExtension, contact.ExternalNumber,
		contact.Company, contact.Tag, contact.Note, contact.OwnerExtension, contact.ID,
	)
	if err != nil {
		return fmt.Errorf("updating contact: %w", err)
	}
	return nil
}

func (r *contactRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return nil
}

func (r *contactRepo) list(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.InternalExtension, &c.ExternalNumber,
			&c.Company, &c.Tag, &c.Note, &c.OwnerExtension, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contact rows: %w", err)
	}
	return contacts, nil
}
