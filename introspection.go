package trellis

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// IntrospectionServer exposes a read-only view of a running Controller
// over HTTP: whether a pulse is in flight, and a snapshot of the event
// bus's subscriptions. Nothing it serves can write to the graph.
//
// Grounded on the teacher framework's use of go-chi/chi for its admin/health
// surface; trimmed to the handful of routes a reactive scheduler actually
// has something read-only to say about.
type IntrospectionServer struct {
	ctrl   *Controller
	bus    *EventBus
	router chi.Router
}

// NewIntrospectionServer builds the router. bus may be nil if the process
// has no EventBus.
func NewIntrospectionServer(ctrl *Controller, bus *EventBus) *IntrospectionServer {
	s := &IntrospectionServer{ctrl: ctrl, bus: bus}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/debug/controller", s.handleController)
	r.Get("/debug/observers", s.handleObservers)
	s.router = r
	return s
}

// ServeHTTP makes IntrospectionServer an http.Handler.
func (s *IntrospectionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *IntrospectionServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type controllerSnapshot struct {
	ActiveBlock bool `json:"activeBlock"`
	Readonly    bool `json:"readonly"`
}

func (s *IntrospectionServer) handleController(w http.ResponseWriter, _ *http.Request) {
	snap := controllerSnapshot{
		ActiveBlock: s.ctrl.Active(),
		Readonly:    s.ctrl.Readonly(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *IntrospectionServer) handleObservers(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.bus == nil {
		_ = json.NewEncoder(w).Encode([]EventObserverInfo{})
		return
	}
	_ = json.NewEncoder(w).Encode(s.bus.Observers())
}
