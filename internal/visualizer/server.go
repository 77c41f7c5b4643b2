package visualizer

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
)

// Server exposes a Hub's update stream over a websocket endpoint. It is the
// engine-side half of spec.md §4.8 startup step 9 ("Start UI and
// Visualizer"): the engine owns a Server for the lifetime of a session and
// calls its Push* methods (via Hub) from the runtime cycle; a browser page
// opens /ws to receive ticks.
type Server struct {
	addr string
	hub  *Hub
	log  clock.Logger

	httpServer *http.Server
}

// NewServer wires a router exposing hub's stream at /ws.
func NewServer(addr string, hub *Hub, log clock.Logger) *Server {
	s := &Server{addr: addr, hub: hub, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start begins serving in a background goroutine. Serve errors other than a
// clean shutdown are logged, matching the module interfaces' "transport
// errors are logged, not propagated" policy, since the visualizer is an
// auxiliary display channel rather than a safety-critical one.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Printf("visualizer: serve: %v", err)
		}
	}()
}

// Stop gracefully shuts the HTTP server down and stops the hub.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.Stop()
	return err
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("visualizer: upgrade: %v", err)
		return
	}

	updates, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	cli := newClient(updates, ws)
	if err := cli.sync(r.Context()); err != nil {
		s.log.Printf("visualizer: client disconnected: %v", err)
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
