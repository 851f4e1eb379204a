package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var _ Backend = (*SQL)(nil)

func (s *SQL) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	q := s.sql.Select("value").From("kv_snapshots").Where(sq.Eq{"snapshot_key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build load snapshot query: %w", err)
	}
	var value string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(value), true, nil
}

func (s *SQL) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	q := s.sql.Insert("kv_snapshots").
		Columns("snapshot_key", "value", "updated_at").
		Values(key, string(value), nowExpr(s.driver)).
		Suffix("ON CONFLICT(snapshot_key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build save snapshot query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	q := s.sql.Delete("kv_snapshots").Where(sq.Eq{"snapshot_key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete snapshot query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// List returns every stored snapshot ordered by key.
func (s *SQL) List(ctx context.Context) ([]Snapshot, error) {
	q := s.sql.Select("snapshot_key", "value", "updated_at").
		From("kv_snapshots").
		OrderBy("snapshot_key ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list snapshots query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		var value string
		if err := rows.Scan(&snap.Key, &value, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.Value = []byte(value)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
