package api

import (
	"net/http"

	"github.com/erazemk/ecoleta/internal/catalog"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/uploads"
)

// ItemsHandler serves the item catalog.
type ItemsHandler struct {
	Service *catalog.Service
	Origins uploads.OriginPolicy
}

type itemResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"img_url"`
}

func newItemResponses(items []model.Item, origin string) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			ID:       it.ID,
			Title:    it.Title,
			ImageURL: uploads.Resolve(origin, it.Image),
		})
	}
	return out
}

// List handles GET /items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListItems(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newItemResponses(items, h.Origins.Origin(r)))
}
