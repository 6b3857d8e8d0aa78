package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/internal/apperr"
	"github.com/erazemk/ecoleta/internal/catalog"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/uploads"
)

const (
	// maxFormMemory is the part of a multipart body kept in memory; the rest
	// spills to temporary files.
	maxFormMemory = 8 << 20
	// formOverhead is allowed on top of the image size for the text fields
	// and multipart framing.
	formOverhead = 1 << 20
)

// PointsHandler handles collection point registration and discovery.
type PointsHandler struct {
	Service *catalog.Service
	Storage *uploads.Storage
	Origins uploads.OriginPolicy
}

type pointSummary struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"img_url"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type pointResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	ImageURL  string  `json:"img_url"`
	Email     string  `json:"email"`
	Whatsapp  string  `json:"whatsapp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	UF        string  `json:"uf"`
}

type pointDetailResponse struct {
	pointResponse
	Items []itemResponse `json:"items"`
}

type createdPointResponse struct {
	pointResponse
	Items []int64 `json:"items"`
}

func newPointResponse(p model.Point, origin string) pointResponse {
	return pointResponse{
		ID:        p.ID,
		Name:      p.Name,
		Image:     p.Image,
		ImageURL:  uploads.Resolve(origin, p.Image),
		Email:     p.Email,
		Whatsapp:  p.Whatsapp,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		City:      p.City,
		UF:        p.UF,
	}
}

// List handles GET /points?city=&uf=&items=.
func (h *PointsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	items, err := parseIDs(q["items"])
	if err != nil {
		writeError(w, r, apperr.Invalid("items", "must be a comma-separated list of item ids", err))
		return
	}

	points, err := h.Service.FindPoints(r.Context(), model.PointFilter{
		City:  q.Get("city"),
		UF:    q.Get("uf"),
		Items: items,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	origin := h.Origins.Origin(r)
	out := make([]pointSummary, 0, len(points))
	for _, p := range points {
		out = append(out, pointSummary{
			ID:        p.ID,
			Name:      p.Name,
			ImageURL:  uploads.Resolve(origin, p.Image),
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		})
	}
	jsonResponse(w, http.StatusOK, out)
}

// Get handles GET /points/{id}.
func (h *PointsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, apperr.Invalid("id", "must be an integer", err))
		return
	}

	detail, err := h.Service.GetPoint(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	origin := h.Origins.Origin(r)
	jsonResponse(w, http.StatusOK, pointDetailResponse{
		pointResponse: newPointResponse(detail.Point, origin),
		Items:         newItemResponses(detail.Items, origin),
	})
}

// Create handles POST /points as multipart/form-data with an "image" file.
// All fields are validated before the image is stored, and the stored image
// is removed again if the point cannot be written.
func (h *PointsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Storage.MaxBytes()+formOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Invalid("image", "must not exceed "+strconv.FormatInt(h.Storage.MaxBytes(), 10)+" bytes", err))
			return
		}
		writeError(w, r, apperr.Invalid("body", "must be multipart/form-data", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, parseErrs := parsePointForm(r)

	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		// Placeholder until the upload is stored; only presence is checked here.
		in.Image = "pending"
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, r, apperr.Invalid("image", "could not be read", err))
		return
	}

	if fields := mergeFieldErrors(parseErrs, in.Normalize().FieldErrors()); len(fields) > 0 {
		writeError(w, r, apperr.Validation(fields...))
		return
	}

	name, err := h.Storage.Save(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in.Image = name

	p, err := h.Service.CreatePoint(r.Context(), in)
	if err != nil {
		if rmErr := h.Storage.Remove(name); rmErr != nil {
			zap.L().Warn("remove orphaned upload", zap.String("file", name), zap.Error(rmErr))
		}
		writeError(w, r, err)
		return
	}

	items := p.Items
	if items == nil {
		items = []int64{}
	}
	jsonResponse(w, http.StatusCreated, createdPointResponse{
		pointResponse: newPointResponse(*p, h.Origins.Origin(r)),
		Items:         items,
	})
}

// parsePointForm reads the text fields of a point submission. Fields that do
// not parse are reported and left zero.
func parsePointForm(r *http.Request) (model.NewPoint, []apperr.FieldError) {
	var fields []apperr.FieldError
	in := model.NewPoint{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Whatsapp: r.FormValue("whatsapp"),
		City:     r.FormValue("city"),
		UF:       r.FormValue("uf"),
	}

	coordinate := func(field string) float64 {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			fields = append(fields, apperr.FieldError{Field: field, Message: "is required"})
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: field, Message: "must be a number"})
			return 0
		}
		return v
	}
	in.Latitude = coordinate("latitude")
	in.Longitude = coordinate("longitude")

	items, err := parseIDs(r.MultipartForm.Value["items"])
	if err != nil {
		fields = append(fields, apperr.FieldError{Field: "items", Message: "must be a comma-separated list of item ids"})
	}
	in.Items = items

	return in, fields
}

// parseIDs parses item ids given as comma-separated values, repeated
// values, or both. Blank entries are ignored.
func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// mergeFieldErrors appends checks to parsed, skipping fields parsing already
// rejected.
func mergeFieldErrors(parsed, checks []apperr.FieldError) []apperr.FieldError {
	seen := make(map[string]bool, len(parsed))
	for _, f := range parsed {
		seen[f.Field] = true
	}
	out := parsed
	for _, f := range checks {
		if !seen[f.Field] {
			out = append(out, f)
		}
	}
	return out
}
