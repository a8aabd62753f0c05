package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const (
	tableContact      = "contact"
	tableContactgroup = "contactgroup"
	tableChannel      = "channel"
)

// withSerializable runs fn inside a serializable transaction so every
// multi-statement mutation observes a consistent snapshot. Any error rolls
// the whole transaction back; serialization failures surface to the caller
// unretried.
func withSerializable(pg *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := pg.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// nullIfEmpty returns nil if string is empty, otherwise returns the string
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
