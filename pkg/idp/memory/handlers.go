package memory

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/federate/pkg/httputil"
)

// Handlers exposes the lookup over HTTP
type Handlers struct {
	lookup *Lookup
}

// NewHandlers creates lookup handlers
func NewHandlers(lookup *Lookup) *Handlers {
	return &Handlers{lookup: lookup}
}

// RegisterRoutes registers the identity routes behind requireSession
func (h *Handlers) RegisterRoutes(router *mux.Router, requireSession func(http.Handler) http.Handler) {
	router.Handle("/identities", requireSession(http.HandlerFunc(h.search))).Methods("GET")
	router.Handle("/identities/{username}", requireSession(http.HandlerFunc(h.retrieve))).Methods("GET")
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	query := httputil.ParseQueryString(r, "q", "")
	httputil.WriteSuccess(w, h.lookup.Search(query))
}

func (h *Handlers) retrieve(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}
	identity, found := h.lookup.Retrieve(username)
	if !found {
		httputil.WriteNotFoundError(w, "identity not found")
		return
	}
	httputil.WriteSuccess(w, identity)
}
