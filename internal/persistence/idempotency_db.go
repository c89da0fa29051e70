package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// PostgresIdempotencyChecker is the durable dedup tier, backed by the
// accepted-command log.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// IsDuplicate reports whether the command was already accepted.
func (pic *PostgresIdempotencyChecker) IsDuplicate(commandType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pic.timeout)
	defer cancel()

	var exists int
	err := pic.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.commands
		WHERE command_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, commandType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "dedup lookup")
	}
	return true, nil
}

// RecentKeys returns the latest accepted commands as "Type:key" strings, for
// warming the in-memory cache at startup.
func (pic *PostgresIdempotencyChecker) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := pic.db.QueryContext(ctx, `
		SELECT command_type, idempotency_key
		FROM event_log.commands
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var commandType, key string
		if err := rows.Scan(&commandType, &key); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, commandType+":"+key)
	}
	return keys, rows.Err()
}
