package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.Account, error) {
	acct := &domain.Account{}
	var profile []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, is_active, profile
		FROM accounts
		WHERE id = $1
	`, userID).Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Role, &acct.IsActive, &profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
		}
		return nil, err
	}

	if err := acct.DecodeProfile(profile); err != nil {
		return nil, fmt.Errorf("decode profile for account %s: %w", userID, err)
	}

	return acct, nil
}

func (r *Repository) Create(ctx context.Context, acct *domain.Account) error {
	profile, err := acct.EncodeProfile()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, role, is_active, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, acct.ID, acct.Email, acct.Name, acct.Role, acct.IsActive, string(profile))
	return err
}
