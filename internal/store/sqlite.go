package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/ecoleta/internal/apperr"
	"github.com/erazemk/ecoleta/internal/db"
	"github.com/erazemk/ecoleta/internal/model"
)

// SQLiteStore implements Store on top of a database opened with db.Open.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite wraps an open SQLite database.
func NewSQLite(database *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return db.EnsureSchema(ctx, s.db)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListItems returns all items ordered by id.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, image FROM items ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetItemsForPoint returns the items a point accepts, ordered by id.
func (s *SQLiteStore) GetItemsForPoint(ctx context.Context, pointID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.title, i.image
		 FROM items i
		 JOIN point_items pi ON pi.item_id = i.id
		 WHERE pi.point_id = ?
		 ORDER BY i.id`, pointID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: items for point %d", pointID)
	}
	defer rows.Close()

	return scanItems(rows)
}

// SeedItems inserts items whose id is not present yet.
func (s *SQLiteStore) SeedItems(ctx context.Context, items []model.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback()

	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, title, image) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
			it.ID, it.Title, it.Image,
		); err != nil {
			return eris.Wrapf(err, "sqlite: seed item %d", it.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit seed")
}

// CreatePoint inserts the point and one point_items row per item in a single
// transaction. If any item does not exist nothing is written.
func (s *SQLiteStore) CreatePoint(ctx context.Context, p model.NewPoint) (*model.Point, error) {
	items := model.UniqueIDs(p.Items)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create point")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO points (image, name, email, whatsapp, latitude, longitude, city, uf)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Image, p.Name, p.Email, p.Whatsapp, p.Latitude, p.Longitude, p.City, p.UF,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert point")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: point id")
	}

	for _, itemID := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO point_items (point_id, item_id) VALUES (?, ?)`,
			id, itemID,
		); err != nil {
			if isSQLiteForeignKey(err) {
				return nil, apperr.Wrap(err, apperr.CodeReferentialViolation, "One or more items do not exist.")
			}
			return nil, eris.Wrapf(err, "sqlite: insert point item %d", itemID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create point")
	}

	return &model.Point{
		ID:        id,
		Image:     p.Image,
		Name:      p.Name,
		Email:     p.Email,
		Whatsapp:  p.Whatsapp,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		City:      p.City,
		UF:        p.UF,
		Items:     items,
	}, nil
}

// GetPoint returns a point with its item ids, or nil if it does not exist.
func (s *SQLiteStore) GetPoint(ctx context.Context, id int64) (*model.Point, error) {
	p, err := scanPoint(s.db.QueryRowContext(ctx,
		`SELECT `+pointColumns+` FROM points p WHERE p.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get point %d", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM point_items WHERE point_id = ? ORDER BY item_id`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: point %d item ids", id)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID int64
		if err := rows.Scan(&itemID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item id")
		}
		p.Items = append(p.Items, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: item id rows")
	}

	return &p, nil
}

// FindPoints returns the points matching the filter, each at most once.
func (s *SQLiteStore) FindPoints(ctx context.Context, filter model.PointFilter) ([]model.Point, error) {
	query, args := findPointsQuery(dialectSQLite, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find points")
	}
	defer rows.Close()

	var points []model.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: point rows")
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Image); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: item rows")
}

func isSQLiteForeignKey(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "FOREIGN KEY")
}
