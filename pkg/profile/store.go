package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `user_id, email, full_name, avatar_url, bio, company, website, timezone, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(&p.UserID, &p.Email, &p.FullName, &p.AvatarURL, &p.Bio,
		&p.Company, &p.Website, &p.Timezone, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves the profile of userID
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Update creates or updates the profile of userID. Unset request fields keep
// their stored value. email is refreshed from the session on every update.
func (s *PostgresStore) Update(ctx context.Context, userID, email string, req *UpdateRequest) (*Profile, error) {
	query := `
		INSERT INTO profiles (user_id, email, full_name, avatar_url, bio, company, website, timezone, updated_at)
		VALUES ($1, $2, COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''), COALESCE($7, ''), COALESCE($8, ''), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
		    full_name = COALESCE($3, profiles.full_name),
		    avatar_url = COALESCE($4, profiles.avatar_url),
		    bio = COALESCE($5, profiles.bio),
		    company = COALESCE($6, profiles.company),
		    website = COALESCE($7, profiles.website),
		    timezone = COALESCE($8, profiles.timezone),
		    updated_at = NOW()
		RETURNING ` + profileColumns

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID, email,
		trimmed(req.FullName), trimmed(req.AvatarURL), trimmed(req.Bio),
		trimmed(req.Company), trimmed(req.Website), trimmed(req.Timezone)))
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

func trimmed(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}
