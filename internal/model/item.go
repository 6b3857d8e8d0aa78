package model

// Item is a recyclable-material category. Items are seeded reference data and
// never change while the server runs.
type Item struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// DefaultItems is the catalog seeded into a fresh database.
var DefaultItems = []Item{
	{ID: 1, Title: "Lâmpadas", Image: "lampadas.svg"},
	{ID: 2, Title: "Pilhas e Baterias", Image: "baterias.svg"},
	{ID: 3, Title: "Papéis e Papelão", Image: "papeis-papelao.svg"},
	{ID: 4, Title: "Resíduos Eletrônicos", Image: "eletronicos.svg"},
	{ID: 5, Title: "Resíduos Orgânicos", Image: "organicos.svg"},
	{ID: 6, Title: "Óleo de Cozinha", Image: "oleo.svg"},
}
