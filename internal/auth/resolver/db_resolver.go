package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"auth-gateway/internal/auth"
	"auth-gateway/internal/db"

	"github.com/google/uuid"
)

// DBResolver projects pool identities into the local users table.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}
	if identity.Provider == "" || identity.ProviderUserID == "" {
		return "", errors.New("identity missing provider or subject")
	}

	// 1. Known identity
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&userID)

	if err == nil {
		return userID.String(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup identity: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	// 2. Existing user with the same email, or a new one
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, given_name, family_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((LOWER(email))) DO UPDATE
		   SET email_verified = users.email_verified OR EXCLUDED.email_verified,
		       updated_at = NOW()
		RETURNING id
	`,
		email,
		identity.EmailVerified,
		identity.GivenName,
		identity.FamilyName,
	).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}

	// 3. Identity mapping
	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_user_id) DO NOTHING
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	if err != nil {
		return "", fmt.Errorf("insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID.String(), nil
}
