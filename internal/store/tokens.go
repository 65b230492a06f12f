package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ── Token persistence ──────────────────────────────────────
// OAuth tokens live next to the fact tables so a scheduled run can
// refresh without re-authorizing interactively.

// GetToken loads the stored token for a provider. A missing row is not
// an error: access comes back empty.
func (w *Warehouse) GetToken(ctx context.Context, provider string) (access, refresh string, expiresAt time.Time, err error) {
	row := w.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s, %s, %s FROM %s WHERE %s = %s",
		w.quoteIdent("access_token"), w.quoteIdent("refresh_token"), w.quoteIdent("expires_at"),
		w.quoteIdent("oauth_tokens"), w.quoteIdent("provider"), w.placeholder(1)),
		provider)

	var rawExpires any
	if err := row.Scan(&access, &refresh, &rawExpires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", time.Time{}, nil
		}
		return "", "", time.Time{}, fmt.Errorf("get token: %w", err)
	}

	switch ts := rawExpires.(type) {
	case time.Time:
		expiresAt = ts.UTC()
	case string:
		expiresAt, _, _ = parseStoredTime(ts)
	case []byte:
		expiresAt, _, _ = parseStoredTime(string(ts))
	}
	return access, refresh, expiresAt, nil
}

// SaveToken upserts the token row for a provider.
func (w *Warehouse) SaveToken(ctx context.Context, provider, access, refresh string, expiresAt time.Time) error {
	now := time.Now().UTC()
	var stmt string
	if w.driver == DriverMySQL {
		stmt = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE %s = VALUES(%s), %s = VALUES(%s), %s = VALUES(%s), %s = VALUES(%s)`,
			w.quoteIdent("oauth_tokens"),
			w.quoteIdent("provider"), w.quoteIdent("access_token"), w.quoteIdent("refresh_token"),
			w.quoteIdent("expires_at"), w.quoteIdent("updated_at"),
			w.quoteIdent("access_token"), w.quoteIdent("access_token"),
			w.quoteIdent("refresh_token"), w.quoteIdent("refresh_token"),
			w.quoteIdent("expires_at"), w.quoteIdent("expires_at"),
			w.quoteIdent("updated_at"), w.quoteIdent("updated_at"))
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (%s, %s, %s, %s, %s)
			ON CONFLICT (%s) DO UPDATE SET
			%s = excluded.%s, %s = excluded.%s, %s = excluded.%s, %s = excluded.%s`,
			w.quoteIdent("oauth_tokens"),
			w.quoteIdent("provider"), w.quoteIdent("access_token"), w.quoteIdent("refresh_token"),
			w.quoteIdent("expires_at"), w.quoteIdent("updated_at"),
			w.placeholder(1), w.placeholder(2), w.placeholder(3), w.placeholder(4), w.placeholder(5),
			w.quoteIdent("provider"),
			w.quoteIdent("access_token"), w.quoteIdent("access_token"),
			w.quoteIdent("refresh_token"), w.quoteIdent("refresh_token"),
			w.quoteIdent("expires_at"), w.quoteIdent("expires_at"),
			w.quoteIdent("updated_at"), w.quoteIdent("updated_at"))
	}

	if _, err := w.db.ExecContext(ctx, stmt, provider, access, refresh, expiresAt.UTC(), now); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
