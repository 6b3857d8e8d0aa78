package db

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id    INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    image TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
    id        INTEGER PRIMARY KEY,
    image     TEXT NOT NULL,
    name      TEXT NOT NULL,
    email     TEXT NOT NULL,
    whatsapp  TEXT NOT NULL,
    latitude  REAL NOT NULL,
    longitude REAL NOT NULL,
    city      TEXT NOT NULL,
    uf        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_points_city_uf ON points(city, uf);

CREATE TABLE IF NOT EXISTS point_items (
    point_id INTEGER NOT NULL REFERENCES points(id) ON DELETE CASCADE,
    item_id  INTEGER NOT NULL REFERENCES items(id),
    PRIMARY KEY (point_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_point_items_item ON point_items(item_id);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "db: create schema")
	}
	return nil
}
