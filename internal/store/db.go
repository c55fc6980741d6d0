package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB holds the pgx-backed Postgres pool shared by the API process.
type DB struct {
	Client *sql.DB
}

// NewDB opens the pool and verifies connectivity before the server starts.
// Gate terminals scan in short morning bursts, so the pool keeps warm idle
// connections rather than reconnecting mid-rush, and recycles them often
// enough to survive proxy-side idle cuts.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close releases the pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
