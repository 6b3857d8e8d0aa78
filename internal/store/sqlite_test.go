package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/ecoleta/internal/apperr"
	"github.com/erazemk/ecoleta/internal/db"
	"github.com/erazemk/ecoleta/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLite(db.NewTestDB(t))
	require.NoError(t, s.SeedItems(context.Background(), model.DefaultItems))
	return s
}

func newPoint(name, city, uf string, items ...int64) model.NewPoint {
	return model.NewPoint{
		Image:     name + ".jpg",
		Name:      name,
		Email:     "contato@example.com",
		Whatsapp:  "81999990000",
		Latitude:  -8.05,
		Longitude: -34.9,
		City:      city,
		UF:        uf,
		Items:     items,
	}
}

func mustCreate(t *testing.T, s *SQLiteStore, p model.NewPoint) *model.Point {
	t.Helper()
	created, err := s.CreatePoint(context.Background(), p)
	require.NoError(t, err)
	return created
}

func pointIDs(points []model.Point) []int64 {
	ids := make([]int64, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestSeedItemsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedItems(ctx, model.DefaultItems))

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultItems, items)
}

func TestCreateAndGetPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, newPoint("Ecoponto", "Recife", "PE", 2, 1))
	assert.NotZero(t, created.ID)
	assert.Equal(t, []int64{2, 1}, created.Items)

	got, err := s.GetPoint(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ecoponto", got.Name)
	assert.Equal(t, "Ecoponto.jpg", got.Image)
	assert.Equal(t, -8.05, got.Latitude)
	assert.Equal(t, []int64{1, 2}, got.Items)

	items, err := s.GetItemsForPoint(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Lâmpadas", items[0].Title)
	assert.Equal(t, "baterias.svg", items[1].Image)
}

func TestGetPointMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetPoint(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreatePointDeduplicatesItems(t *testing.T) {
	s := newTestStore(t)

	created := mustCreate(t, s, newPoint("Dup", "Recife", "PE", 3, 3, 1, 3))
	assert.Equal(t, []int64{3, 1}, created.Items)

	got, err := s.GetPoint(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got.Items)
}

func TestCreatePointUnknownItemRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreatePoint(ctx, newPoint("Broken", "Recife", "PE", 1, 2, 999))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeReferentialViolation, apperr.CodeOf(err))

	points, err := s.FindPoints(ctx, model.PointFilter{})
	require.NoError(t, err)
	assert.Empty(t, points)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM point_items`).Scan(&n))
	assert.Zero(t, n)

	got, err := s.GetPoint(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindPointsDeduplicates(t *testing.T) {
	s := newTestStore(t)

	p := mustCreate(t, s, newPoint("Multi", "Recife", "PE", 1, 2, 3))

	points, err := s.FindPoints(context.Background(), model.PointFilter{City: "Recife", UF: "PE", Items: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, pointIDs(points))
}

func TestFindPointsInclusiveOr(t *testing.T) {
	s := newTestStore(t)

	a := mustCreate(t, s, newPoint("A", "Recife", "PE", 1))
	b := mustCreate(t, s, newPoint("B", "Recife", "PE", 2))
	mustCreate(t, s, newPoint("C", "Recife", "PE", 5))

	points, err := s.FindPoints(context.Background(), model.PointFilter{City: "Recife", UF: "PE", Items: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, pointIDs(points))
}

func TestFindPointsEmptyFilterPassthrough(t *testing.T) {
	s := newTestStore(t)

	mustCreate(t, s, newPoint("A", "Recife", "PE", 1))
	mustCreate(t, s, newPoint("B", "Recife", "PE", 4, 5))
	mustCreate(t, s, newPoint("C", "Recife", "PE", 6))
	mustCreate(t, s, newPoint("D", "Olinda", "PE", 1))

	points, err := s.FindPoints(context.Background(), model.PointFilter{City: "Recife", UF: "PE"})
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestFindPointsRegionScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recife := mustCreate(t, s, newPoint("Recife", "Recife", "PE", 1))
	sp := mustCreate(t, s, newPoint("SP", "São Paulo", "SP", 1))

	tests := []struct {
		name   string
		filter model.PointFilter
		want   []int64
	}{
		{"city and uf", model.PointFilter{City: "Recife", UF: "PE", Items: []int64{1}}, []int64{recife.ID}},
		{"uf only", model.PointFilter{UF: "SP"}, []int64{sp.ID}},
		{"no region matches all", model.PointFilter{Items: []int64{1}}, []int64{recife.ID, sp.ID}},
		{"unknown region", model.PointFilter{City: "Manaus", UF: "AM"}, []int64{}},
		{"mismatched city and uf", model.PointFilter{City: "Recife", UF: "SP"}, []int64{}},
		{"unknown item", model.PointFilter{City: "Recife", UF: "PE", Items: []int64{999}}, []int64{}},
		{"known item not offered", model.PointFilter{City: "Recife", UF: "PE", Items: []int64{6}}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := s.FindPoints(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pointIDs(points))
		})
	}
}

func TestFindPointsZeroItemPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.db.Exec(`INSERT INTO points (image, name, email, whatsapp, latitude, longitude, city, uf)
		VALUES ('x.jpg', 'Vazio', 'v@example.com', '1', 0, 0, 'Recife', 'PE')`)
	require.NoError(t, err)
	id, _ := res.LastInsertId()

	all, err := s.FindPoints(ctx, model.PointFilter{City: "Recife", UF: "PE"})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, pointIDs(all))

	filtered, err := s.FindPoints(ctx, model.PointFilter{City: "Recife", UF: "PE", Items: []int64{1}})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestFindPointsIdempotentRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, newPoint("A", "Recife", "PE", 1, 2))
	mustCreate(t, s, newPoint("B", "Recife", "PE", 2, 3))

	filter := model.PointFilter{City: "Recife", UF: "PE", Items: []int64{2, 3}}
	first, err := s.FindPoints(ctx, filter)
	require.NoError(t, err)
	second, err := s.FindPoints(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindPointsQuerySQLite(t *testing.T) {
	query, args := findPointsQuery(dialectSQLite, model.PointFilter{City: "Recife", UF: "PE", Items: []int64{1, 2, 1}})
	assert.Contains(t, query, "JOIN point_items pi ON pi.point_id = p.id")
	assert.Contains(t, query, "pi.item_id IN (SELECT value FROM json_each(?))")
	assert.Contains(t, query, "SELECT DISTINCT")
	assert.Equal(t, []any{"[1,2]", "Recife", "PE"}, args)
}

func TestFindPointsLargeItemSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustCreate(t, s, newPoint("Recife", "Recife", "PE", 3))

	// More distinct ids than SQLite allows bind variables in one statement.
	ids := make([]int64, 40000)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	points, err := s.FindPoints(ctx, model.PointFilter{City: "Recife", UF: "PE", Items: ids})
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, pointIDs(points))

	points, err = s.FindPoints(ctx, model.PointFilter{City: "X", UF: "Y", Items: ids})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestFindPointsQueryNoItemsSkipsJoin(t *testing.T) {
	query, args := findPointsQuery(dialectPostgres, model.PointFilter{UF: "PE"})
	assert.NotContains(t, query, "JOIN")
	assert.Contains(t, query, "p.uf = $1")
	assert.Equal(t, []any{"PE"}, args)
}
