package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

func (s *Store) AppendMessage(ctx context.Context, m Message) (int64, error) {
	related, err := marshalRelated(m.RelatedEntryIDs)
	if err != nil {
		return 0, err
	}
	q := s.sql.Insert("messages").
		Columns("role", "text", "ts_millis", "related_entry_ids").
		Values(m.Role, m.Text, m.Timestamp, related).
		Suffix(returningID(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build append message query: %w", err)
	}

	if s.driver == "postgres" {
		var id int64
		if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("append message: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append message id: %w", err)
	}
	return id, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	q := s.sql.Select("id", "role", "text", "ts_millis", "related_entry_ids").
		From("messages").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build get message query: %w", err)
	}

	var m Message
	var related string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&m.ID, &m.Role, &m.Text, &m.Timestamp, &related); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	m.RelatedEntryIDs = unmarshalRelated(related)
	return m, nil
}

// ListMessages returns the full transcript in submission order.
func (s *Store) ListMessages(ctx context.Context) ([]Message, error) {
	q := s.sql.Select("id", "role", "text", "ts_millis", "related_entry_ids").
		From("messages").
		OrderBy("id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var related string
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &m.Timestamp, &related); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.RelatedEntryIDs = unmarshalRelated(related)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id int64, text string) error {
	q := s.sql.Update("messages").Set("text", text).Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update message query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	q := s.sql.Delete("messages").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete message query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessagesAfter truncates the transcript strictly after the
// given message id, discarding the old continuation on edit.
func (s *Store) DeleteMessagesAfter(ctx context.Context, id int64) error {
	q := s.sql.Delete("messages").Where(sq.Gt{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build truncate messages query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllMessages(ctx context.Context) error {
	sqlStr, args, err := s.sql.Delete("messages").ToSql()
	if err != nil {
		return fmt.Errorf("build delete all messages query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete all messages: %w", err)
	}
	return nil
}

func returningID(driver string) string {
	if driver == "postgres" {
		return "RETURNING id"
	}
	return ""
}

func marshalRelated(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal related entry ids: %w", err)
	}
	return string(b), nil
}

func unmarshalRelated(raw string) []string {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || len(ids) == 0 {
		return nil
	}
	return ids
}
