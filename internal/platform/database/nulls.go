package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	txcontext "certhub/pkg/platform/tx"
)

// Executor is the subset of *sql.DB and *sql.Tx that stores use.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn returns the transaction carried in ctx, or db.
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// NullUUID converts an optional typed ID into a driver value.
func NullUUID[T ~[16]byte](v *T) any {
	if v == nil {
		return nil
	}
	return uuid.UUID(*v)
}

// TypedID converts a scanned nullable UUID back into an optional typed ID.
func TypedID[T ~[16]byte](v *uuid.UUID) *T {
	if v == nil {
		return nil
	}
	out := T(*v)
	return &out
}

// NullTime converts an optional time into a driver value.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// TimePtr converts a scanned sql.NullTime into an optional time.
func TimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
