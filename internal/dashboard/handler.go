package dashboard

import "net/http"

// Handler serves the dashboard's read-only pages.
type Handler struct {
	service *Service
}

// NewHandler creates a new dashboard handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers dashboard routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.HandleIndex)
	mux.HandleFunc("/failures", h.HandleFailures)
}

// HandleIndex renders the queue overview: depth, in-flight, terminal
// counters, and per-consumer throughput.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	overview := h.service.GetOverview()
	data := map[string]interface{}{
		"Title":      "Coordinator",
		"Overview":   overview,
		"ActivePage": "home",
	}

	if err := Render(w, "index.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleFailures renders the bounded ring of recent task failures.
func (h *Handler) HandleFailures(w http.ResponseWriter, r *http.Request) {
	overview := h.service.GetOverview()
	data := map[string]interface{}{
		"Title":      "Recent failures",
		"Failures":   overview.RecentFailures,
		"ActivePage": "failures",
	}

	if err := Render(w, "failures.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
