package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/erazemk/ecoleta/internal/apperr"
	"github.com/erazemk/ecoleta/internal/model"
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock's pool
// satisfies it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id    BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	image TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
	id        BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	image     TEXT NOT NULL,
	name      TEXT NOT NULL,
	email     TEXT NOT NULL,
	whatsapp  TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	city      TEXT NOT NULL,
	uf        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_points_city_uf ON points(city, uf);

CREATE TABLE IF NOT EXISTS point_items (
	point_id BIGINT NOT NULL REFERENCES points(id) ON DELETE CASCADE,
	item_id  BIGINT NOT NULL REFERENCES items(id),
	PRIMARY KEY (point_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_point_items_item ON point_items(item_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, image FROM items ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	return collectItems(rows)
}

func (s *PostgresStore) GetItemsForPoint(ctx context.Context, pointID int64) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.title, i.image
		 FROM items i
		 JOIN point_items pi ON pi.item_id = i.id
		 WHERE pi.point_id = $1
		 ORDER BY i.id`, pointID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: items for point %d", pointID)
	}
	return collectItems(rows)
}

func (s *PostgresStore) SeedItems(ctx context.Context, items []model.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin seed")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO items (id, title, image) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			it.ID, it.Title, it.Image,
		); err != nil {
			return eris.Wrapf(err, "postgres: seed item %d", it.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit seed")
}

func (s *PostgresStore) CreatePoint(ctx context.Context, p model.NewPoint) (*model.Point, error) {
	items := model.UniqueIDs(p.Items)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create point")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO points (image, name, email, whatsapp, latitude, longitude, city, uf)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.Image, p.Name, p.Email, p.Whatsapp, p.Latitude, p.Longitude, p.City, p.UF,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert point")
	}

	for _, itemID := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO point_items (point_id, item_id) VALUES ($1, $2)`,
			id, itemID,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return nil, apperr.Wrap(err, apperr.CodeReferentialViolation, "One or more items do not exist.")
			}
			return nil, eris.Wrapf(err, "postgres: insert point item %d", itemID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create point")
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

func (s *PostgresStore) GetPoint(ctx context.Context, id int64) (*model.Point, error) {
	p, err := scanPoint(s.pool.QueryRow(ctx,
		`SELECT `+pointColumns+` FROM points p WHERE p.id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get point %d", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id FROM point_items WHERE point_id = $1 ORDER BY item_id`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: point %d item ids", id)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: collect point %d item ids", id)
	}
	if len(ids) > 0 {
		p.Items = ids
	}

	return &p, nil
}

func (s *PostgresStore) FindPoints(ctx context.Context, filter model.PointFilter) ([]model.Point, error) {
	query, args := findPointsQuery(dialectPostgres, filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find points")
	}
	defer rows.Close()

	var points []model.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: point rows")
}

func collectItems(rows pgx.Rows) ([]model.Item, error) {
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Image); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: item rows")
}
