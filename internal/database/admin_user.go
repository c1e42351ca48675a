package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lq216/gonopbx/internal/database/models"
)

// adminUserRepo implements AdminUserRepository.
type adminUserRepo struct {
	db *DB
}

// NewAdminUserRepository creates a new AdminUserRepository.
func NewAdminUserRepository(db *DB) AdminUserRepository {
	return &adminUserRepo{db: db}
}

func (r *adminUserRepo) Create(ctx context.Context, user *models.AdminUser) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_users (username, email, password_hash, full_name, role)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.FullName, user.Role,
	)
	if err != nil {
		return fmt.Errorf("inserting admin user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	user.ID = id
	return nil
}

func (r *adminUserRepo) GetByID(ctx context.Context, id int64) (*models.AdminUser, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, full_name, role, created_at, updated_at
		 FROM admin_users WHERE id = ?`, id,
	))
}

func (r *adminUserRepo) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, full_name, role, created_at, updated_at
		 FROM admin_users WHERE username = ?`, username,
	))
}

func (r *adminUserRepo) List(ctx context.Context) ([]models.AdminUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, password_hash, full_name, role, created_at, updated_at
		 FROM admin_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing admin users: %w", err)
	}
	defer rows.Close()

	var users []models.AdminUser
	for rows.Next() {
		var u models.AdminUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning admin user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin user rows: %w", err)
	}
	return users, nil
}

func (r *adminUserRepo) Update(ctx context.Context, user *models.AdminUser) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admin_users SET username = ?, email = ?, password_hash = ?,
		 full_name = ?, role = ?, updated_at = datetime('now') WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, user.FullName, user.Role, user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating admin user: %w", err)
	}
	return nil
}

func (r *adminUserRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting admin user: %w", err)
	}
	return nil
}

func (r *adminUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admin users: %w", err)
	}
	return count, nil
}

func (r *adminUserRepo) scanOne(row *sql.Row) (*models.AdminUser, error) {
	var u models.AdminUser
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning admin user: %w", err)
	}
	return &u, nil
}
