package storage

import (
	"context"
	"fmt"
)

// Sequences hands out monotonic numbers from the sequences table.
type Sequences struct {
	db *DB
}

// NewSequences creates a sequence generator on db.
func NewSequences(db *DB) *Sequences {
	return &Sequences{db: db}
}

// Next increments and returns the named sequence, starting at 1.
// The increment and the read share one transaction, so concurrent callers
// never see the same value.
func (s *Sequences) Next(ctx context.Context, name string) (int64, error) {
	v, err := s.next(ctx, name)
	if err != nil {
		// Two first-time callers may race on the initial insert; the loser
		// finds the row on its second attempt.
		v, err = s.next(ctx, name)
	}
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return v, nil
}

func (s *Sequences) next(ctx context.Context, name string) (int64, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := s.db.exec(ctx, tx, `UPDATE sequences SET value = value + 1 WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if _, err := s.db.exec(ctx, tx, `INSERT INTO sequences (name, value) VALUES (?, 1)`, name); err != nil {
			return 0, err
		}
	}

	var v int64
	if err := s.db.queryRow(ctx, tx, `SELECT value FROM sequences WHERE name = ?`, name).Scan(&v); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return v, nil
}
