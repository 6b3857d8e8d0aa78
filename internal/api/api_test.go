package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/ecoleta/internal/catalog"
	"github.com/erazemk/ecoleta/internal/db"
	"github.com/erazemk/ecoleta/internal/metrics"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/store"
	"github.com/erazemk/ecoleta/internal/uploads"
)

type testEnv struct {
	handler http.Handler
	svc     *catalog.Service
	storage *uploads.Storage
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	st := store.NewSQLite(db.NewTestDB(t))
	require.NoError(t, st.SeedItems(context.Background(), model.DefaultItems))

	storage, err := uploads.NewStorage(t.TempDir(), 1<<20, 256, 0)
	require.NoError(t, err)

	m := metrics.New()
	svc := catalog.New(st, catalog.WithMetrics(m))

	return &testEnv{
		handler: NewRouter(svc, storage, m, cfg),
		svc:     svc,
		storage: storage,
		metrics: m,
	}
}

// do serves req; httptest requests carry Host "example.com".
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.storage.Dir())
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := range 30 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{R: 30, G: 180, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func validFields() map[string]string {
	return map[string]string{
		"name":      "Mercado do Zé",
		"email":     "contato@mercadoze.com.br",
		"whatsapp":  "31999998888",
		"latitude":  "-19.9227318",
		"longitude": "-43.9450948",
		"city":      "Belo Horizonte",
		"uf":        "MG",
		"items":     "1, 2",
	}
}

func createRequest(t *testing.T, fields map[string]string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "foto.png")
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/points", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestListItems(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/items")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	items := decode[[]itemResponse](t, rec)
	require.Len(t, items, len(model.DefaultItems))
	assert.Equal(t, itemResponse{ID: 1, Title: "Lâmpadas", ImageURL: "http://example.com/uploads/lampadas.svg"}, items[0])
	assert.Equal(t, "Óleo de Cozinha", items[5].Title)
}

func TestImageURLUsesPublicURL(t *testing.T) {
	env := setupTestServer(t, Config{PublicURL: "https://cdn.example.org/"})

	items := decode[[]itemResponse](t, env.get("/items"))
	require.NotEmpty(t, items)
	assert.Equal(t, "https://cdn.example.org/uploads/lampadas.svg", items[0].ImageURL)
}

func TestImageURLHonorsForwardedHeadersFromTrustedProxy(t *testing.T) {
	env := setupTestServer(t, Config{TrustProxy: true})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "ecoleta.example.net")

	items := decode[[]itemResponse](t, env.do(req))
	require.NotEmpty(t, items)
	assert.Equal(t, "https://ecoleta.example.net/uploads/lampadas.svg", items[0].ImageURL)
}

func TestImageURLIgnoresForwardedHeadersByDefault(t *testing.T) {
	env := setupTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "attacker.example")

	items := decode[[]itemResponse](t, env.do(req))
	require.NotEmpty(t, items)
	assert.Equal(t, "http://example.com/uploads/lampadas.svg", items[0].ImageURL)
}

func TestCreatePointFlow(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.do(createRequest(t, validFields(), pngImage(t)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[createdPointResponse](t, rec)
	assert.Positive(t, created.ID)
	assert.Equal(t, "Mercado do Zé", created.Name)
	assert.Equal(t, "MG", created.UF)
	assert.Equal(t, []int64{1, 2}, created.Items)
	assert.InDelta(t, -19.9227318, created.Latitude, 1e-9)
	assert.True(t, strings.HasSuffix(created.Image, ".jpg"), created.Image)
	assert.NotContains(t, created.Image, "foto")
	assert.Equal(t, "http://example.com/uploads/"+created.Image, created.ImageURL)
	assert.Equal(t, []string{created.Image}, env.storedFiles(t))

	// Detail joins the item rows.
	rec = env.get("/points/" + strconv.FormatInt(created.ID, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[pointDetailResponse](t, rec)
	assert.Equal(t, created.ID, detail.ID)
	assert.Equal(t, "contato@mercadoze.com.br", detail.Email)
	assert.Equal(t, created.ImageURL, detail.ImageURL)
	require.Len(t, detail.Items, 2)
	assert.Equal(t, "Lâmpadas", detail.Items[0].Title)
	assert.Equal(t, "http://example.com/uploads/baterias.svg", detail.Items[1].ImageURL)

	// The stored image is served back.
	rec = env.get("/uploads/" + created.Image)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestCreatePointMissingEmail(t *testing.T) {
	env := setupTestServer(t, Config{})

	fields := validFields()
	delete(fields, "email")

	rec := env.do(createRequest(t, fields, pngImage(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "Validation failed.", resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "email", resp.Errors[0].Field)

	points := decode[[]pointSummary](t, env.get("/points"))
	assert.Empty(t, points)
	assert.Empty(t, env.storedFiles(t))
}

func TestCreatePointEmptyItems(t *testing.T) {
	env := setupTestServer(t, Config{})

	fields := validFields()
	fields["items"] = ""

	rec := env.do(createRequest(t, fields, pngImage(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "items", resp.Errors[0].Field)
	assert.Empty(t, decode[[]pointSummary](t, env.get("/points")))
}

func TestCreatePointReportsEveryInvalidField(t *testing.T) {
	env := setupTestServer(t, Config{})

	fields := validFields()
	fields["latitude"] = "north"
	fields["items"] = "1,x"
	fields["email"] = "not-an-email"

	rec := env.do(createRequest(t, fields, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	got := map[string]string{}
	for _, f := range resp.Errors {
		got[f.Field] = f.Message
	}
	assert.Equal(t, map[string]string{
		"latitude": "must be a number",
		"items":    "must be a comma-separated list of item ids",
		"email":    "must be a valid email address",
		"image":    "is required",
	}, got)
}

func TestCreatePointUnknownItemRemovesUpload(t *testing.T) {
	env := setupTestServer(t, Config{})

	fields := validFields()
	fields["items"] = "1,99"

	rec := env.do(createRequest(t, fields, pngImage(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "One or more items do not exist.", resp.Message)
	assert.Empty(t, env.storedFiles(t))
	assert.Empty(t, decode[[]pointSummary](t, env.get("/points")))
}

func TestCreatePointRejectsNonImage(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.do(createRequest(t, validFields(), []byte("GIF89a not really")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "image", resp.Errors[0].Field)
	assert.Empty(t, env.storedFiles(t))
}

func TestCreatePointRejectsOversizedImage(t *testing.T) {
	env := setupTestServer(t, Config{})

	big := append(pngImage(t), make([]byte, 1<<20)...)
	rec := env.do(createRequest(t, validFields(), big))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "image", resp.Errors[0].Field)
	assert.Empty(t, env.storedFiles(t))
}

func TestCreatePointRequiresMultipart(t *testing.T) {
	env := setupTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/points", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindPoints(t *testing.T) {
	env := setupTestServer(t, Config{})
	ctx := context.Background()

	create := func(name, city, uf string, items ...int64) int64 {
		p, err := env.svc.CreatePoint(ctx, model.NewPoint{
			Image: "p.jpg", Name: name, Email: "p@example.com", Whatsapp: "1",
			Latitude: -20, Longitude: -44, City: city, UF: uf, Items: items,
		})
		require.NoError(t, err)
		return p.ID
	}
	bh := create("BH", "Belo Horizonte", "MG", 1, 2)
	create("Contagem", "Contagem", "MG", 1)
	create("Rio", "Rio de Janeiro", "RJ", 1, 2)

	for _, query := range []string{
		"/points?city=Belo%20Horizonte&uf=MG&items=1,2",
		"/points?city=Belo%20Horizonte&uf=MG&items=1&items=2",
	} {
		rec := env.get(query)
		require.Equal(t, http.StatusOK, rec.Code, query)
		points := decode[[]pointSummary](t, rec)
		require.Len(t, points, 1, query)
		assert.Equal(t, bh, points[0].ID)
		assert.Equal(t, "http://example.com/uploads/p.jpg", points[0].ImageURL)
	}

	points := decode[[]pointSummary](t, env.get("/points?uf=MG&items=1"))
	assert.Len(t, points, 2)

	points = decode[[]pointSummary](t, env.get("/points?city=Belo%20Horizonte&uf=MG&items=5"))
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestFindPointsInvalidItems(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/points?city=X&uf=Y&items=1,abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "items", resp.Errors[0].Field)
}

func TestGetPointNotFound(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/points/4242")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Point not found."}`, rec.Body.String())
}

func TestGetPointInvalidID(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/points/abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "id", resp.Errors[0].Field)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	env := setupTestServer(t, Config{})

	env.get("/items")
	env.get("/points/4242")

	rec := env.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ecoleta_http_requests_total{method="GET",route="GET /items",status="200"} 1`)
	assert.Contains(t, body, `ecoleta_http_requests_total{method="GET",route="GET /points/{id}",status="400"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t, Config{})

	rec := env.get("/health")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = env.do(req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, Config{CORSOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/points", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := env.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
