package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Persisted settings keys. Each key is loaded independently with its
// own default so one corrupt value cannot take the others down.
const (
	SettingCustomSchemas = "custom_schemas"
	SettingAIConfig      = "ai_config"
	SettingChatSettings  = "chat_settings"
)

func (s *Store) GetSettingJSON(ctx context.Context, key string) (string, bool, error) {
	q := s.sql.Select("value_json").From("settings").Where(sq.Eq{"key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build get setting query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) PutSettingJSON(ctx context.Context, key, valueJSON string) error {
	q := s.sql.Insert("settings").
		Columns("key", "value_json").
		Values(key, valueJSON).
		Suffix("ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build put setting query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("put setting %q: %w", key, err)
	}
	return nil
}
