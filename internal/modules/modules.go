package modules

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Metadata describes a Skry module for discovery by the dashboard.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Module couples metadata with the routes it mounts. Access control per
// module is the router's concern (middleware.RequireModule).
type Module struct {
	Metadata Metadata
	Routes   func(r chi.Router)
}

type Registry struct {
	modules []Module
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (reg *Registry) Register(m Module) {
	reg.modules = append(reg.modules, m)
}

// Mount attaches every registered module under /m/{id}. The ad-cam module
// keeps its /ads alias from the single-module days.
func (reg *Registry) Mount(r chi.Router) {
	for _, m := range reg.modules {
		log.Printf("Loading module: %s (%s)", m.Metadata.Name, m.Metadata.ID)
		r.Route("/m/"+m.Metadata.ID, m.Routes)

		if m.Metadata.ID == "ad-cam" {
			r.Route("/ads", m.Routes)
		}
	}
}

// ListHandler returns the metadata of all registered modules
// @Summary List available modules
// @Tags modules
// @Produce json
// @Success 200 {array} Metadata
// @Router /modules [get]
func (reg *Registry) ListHandler(w http.ResponseWriter, r *http.Request) {
	meta := make([]Metadata, 0, len(reg.modules))
	for _, m := range reg.modules {
		meta = append(meta, m.Metadata)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}
