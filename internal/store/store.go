package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/erazemk/ecoleta/internal/model"
)

// Store defines the persistence interface for items and collection points.
type Store interface {
	// Items
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItemsForPoint(ctx context.Context, pointID int64) ([]model.Item, error)
	SeedItems(ctx context.Context, items []model.Item) error

	// Points
	CreatePoint(ctx context.Context, p model.NewPoint) (*model.Point, error)
	GetPoint(ctx context.Context, id int64) (*model.Point, error)
	FindPoints(ctx context.Context, filter model.PointFilter) ([]model.Point, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const pointColumns = `p.id, p.image, p.name, p.email, p.whatsapp, p.latitude, p.longitude, p.city, p.uf`

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// findPointsQuery builds the discovery query. With a non-empty item set the
// points are joined to point_items and constrained by item_id IN the set;
// DISTINCT collapses points that match several requested items into one row.
// The set is always a single bind parameter so its size is not bounded by
// the engine's variable limit.
func findPointsQuery(d dialect, f model.PointFilter) (string, []any) {
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		if d == dialectPostgres {
			return "$" + strconv.Itoa(len(args))
		}
		return "?"
	}

	items := model.UniqueIDs(f.Items)

	var b strings.Builder
	b.WriteString(`SELECT DISTINCT ` + pointColumns + ` FROM points p`)
	if len(items) > 0 {
		b.WriteString(` JOIN point_items pi ON pi.point_id = p.id`)
	}
	b.WriteString(` WHERE 1=1`)

	if len(items) > 0 {
		if d == dialectPostgres {
			b.WriteString(` AND pi.item_id = ANY(` + bind(items) + `)`)
		} else {
			b.WriteString(` AND pi.item_id IN (SELECT value FROM json_each(` + bind(jsonIDs(items)) + `))`)
		}
	}
	if f.City != "" {
		b.WriteString(` AND p.city = ` + bind(f.City))
	}
	if f.UF != "" {
		b.WriteString(` AND p.uf = ` + bind(f.UF))
	}
	b.WriteString(` ORDER BY p.id`)

	return b.String(), args
}

// jsonIDs encodes ids as a JSON array for SQLite's json_each.
func jsonIDs(ids []int64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoint(row rowScanner) (model.Point, error) {
	var p model.Point
	err := row.Scan(&p.ID, &p.Image, &p.Name, &p.Email, &p.Whatsapp, &p.Latitude, &p.Longitude, &p.City, &p.UF)
	return p, err
}
