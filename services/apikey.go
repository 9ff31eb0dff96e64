package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/telcoops/casedesk/db"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyService authenticates webhook senders. Keys are stored bcrypt
// hashed; the plaintext is shown once at creation time.
type APIKeyService struct {
	PG *sql.DB
}

func NewAPIKeyService(pg *sql.DB) *APIKeyService {
	return &APIKeyService{PG: pg}
}

// Create stores a new key and returns its record. The caller supplies the
// plaintext (typically a generated uuid).
func (s *APIKeyService) Create(ctx context.Context, name, plaintext string) (*db.APIKey, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	key := &db.APIKey{Name: name, KeyHash: string(hash), IsActive: true}
	err = s.PG.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key_hash, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id, created_at`, name, key.KeyHash,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Validate checks a presented key against all active hashes and bumps
// last_used_at on a match.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*db.APIKey, error) {
	rows, err := s.PG.QueryContext(ctx,
		`SELECT id, name, key_hash FROM api_keys WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched *db.APIKey
	for rows.Next() {
		var key db.APIKey
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash); err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) == nil {
			matched = &key
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if matched == nil {
		return nil, ErrInvalidAPIKey
	}
	if _, err := s.PG.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, matched.ID); err != nil {
		log.Printf("WARNING: failed to record api key use: %v", err)
	}
	return matched, nil
}

// Revoke deactivates a key.
func (s *APIKeyService) Revoke(ctx context.Context, id int64) error {
	res, err := s.PG.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidAPIKey
	}
	return nil
}
