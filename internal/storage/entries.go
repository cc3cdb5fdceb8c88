package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"lifelog/internal/schema"
)

var ErrNotFound = errors.New("not found")

func (s *Store) CreateEntry(ctx context.Context, e Entry) error {
	detailsJSON, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	q := s.sql.Insert("entries").
		Columns("id", "date", "category", "event", "details_json", "image_b64").
		Values(e.ID, e.Date, e.Category, e.Event, detailsJSON, e.Image)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build create entry query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, e Entry) error {
	detailsJSON, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	q := s.sql.Update("entries").
		Set("date", e.Date).
		Set("category", e.Category).
		Set("event", e.Event).
		Set("details_json", detailsJSON).
		Set("image_b64", e.Image).
		Where(sq.Eq{"id": e.ID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update entry query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	q := s.sql.Delete("entries").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete entry query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (Entry, error) {
	q := s.sql.Select("id", "date", "category", "event", "details_json", "image_b64", "created_at").
		From("entries").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build get entry query: %w", err)
	}

	var e Entry
	var detailsJSON string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&e.ID, &e.Date, &e.Category, &e.Event, &detailsJSON, &e.Image, &e.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	e.Details = unmarshalDetails(detailsJSON)
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]Entry, error) {
	q := s.sql.Select("id", "date", "category", "event", "details_json", "image_b64", "created_at").
		From("entries").
		OrderBy("date ASC", "created_at ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list entries query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var detailsJSON string
		if err := rows.Scan(&e.ID, &e.Date, &e.Category, &e.Event, &detailsJSON, &e.Image, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		e.Details = unmarshalDetails(detailsJSON)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteAllEntries(ctx context.Context) error {
	sqlStr, args, err := s.sql.Delete("entries").ToSql()
	if err != nil {
		return fmt.Errorf("build delete all entries query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete all entries: %w", err)
	}
	return nil
}

func marshalDetails(d schema.Details) (string, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(b), nil
}

// unmarshalDetails falls back to an empty map on malformed stored
// JSON; a broken row should not poison the whole dashboard.
func unmarshalDetails(raw string) schema.Details {
	var d schema.Details
	if err := json.Unmarshal([]byte(raw), &d); err != nil || d == nil {
		return schema.Details{}
	}
	return d
}
