package auth

import (
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"github.com/procurex/requisition-engine/internal/auth"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetPasswordForEmail(email string) (string, string, error) {
	var passwordHash string
	var userID string
	query := `SELECT id, password_hash FROM users WHERE email = ? AND is_active = true`

	row := r.db.Raw(query, email).Row()
	if err := row.Scan(&userID, &passwordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", auth.ErrInvalidCredentials
		}
		return "", "", err
	}
	return passwordHash, userID, nil
}

func (r *Repository) GetActiveUser(userID int64) (*auth.User, error) {
	var user auth.User
	query := `SELECT id, email, name FROM users WHERE id = ? AND is_active = true`

	row := r.db.Raw(query, userID).Row()
	if err := row.Scan(&user.ID, &user.Email, &user.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserInactive
		}
		return nil, err
	}
	return &user, nil
}
