// Package db opens the Postgres connection backing the record store.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tradescope/supplier-match/internal/config"
)

// Connection holds the database connection.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens a connection using the PG* environment variables.
func NewConnection() (*Connection, error) {
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "tradescope")
	password := config.GetEnv("PGPASSWORD", "tradescope")
	dbname := config.GetEnv("PGDATABASE", "tradescope")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	return &Connection{DB: db}, nil
}

// Close closes the database connection.
func (c *Connection) Close() error {
	return c.DB.Close()
}
