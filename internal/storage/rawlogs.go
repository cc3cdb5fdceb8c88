package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

func (s *Store) AppendRawLog(ctx context.Context, r RawLog) error {
	q := s.sql.Insert("raw_logs").
		Columns("id", "ts_millis", "text").
		Values(r.ID, r.Timestamp, r.Text)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build append raw log query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("append raw log: %w", err)
	}
	return nil
}

func (s *Store) ListRawLogs(ctx context.Context) ([]RawLog, error) {
	q := s.sql.Select("id", "ts_millis", "text").
		From("raw_logs").
		OrderBy("ts_millis ASC", "id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list raw logs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list raw logs: %w", err)
	}
	defer rows.Close()

	out := make([]RawLog, 0)
	for rows.Next() {
		var r RawLog
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Text); err != nil {
			return nil, fmt.Errorf("scan raw log row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw log rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateRawLogText(ctx context.Context, id, text string) error {
	q := s.sql.Update("raw_logs").Set("text", text).Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update raw log query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update raw log: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRawLog(ctx context.Context, id string) error {
	q := s.sql.Delete("raw_logs").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete raw log query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete raw log: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllRawLogs(ctx context.Context) error {
	sqlStr, args, err := s.sql.Delete("raw_logs").ToSql()
	if err != nil {
		return fmt.Errorf("build delete all raw logs query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete all raw logs: %w", err)
	}
	return nil
}
