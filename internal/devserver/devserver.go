// Package devserver is a live-reload companion for internal/engine: it
// watches a set of template paths through the same VFS the engine renders
// from, and pushes a reload notice over a WebSocket to every connected
// browser tab whenever one of them changes.
//
// Grounded on the teacher's internal/network/websocket.go
// (WebSocketServer: an Upgrader, a Clients map guarded by a mutex, a
// background goroutine running the server, broadcast-to-all-clients by
// iterating the map) adapted from a generic network primitive into a
// single fixed purpose: push "reload" and nothing else.
package devserver

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ajj/internal/engine"
)

// VFSWatcher is the subset of engine.VFS the watch loop needs to detect a
// change without importing internal/engine's VFS type directly (it's
// already exported there; this alias keeps devserver's dependency surface
// named for what it uses).
type VFSWatcher interface {
	Timestamp(path string) (time.Time, error)
}

// Server upgrades /ws connections and broadcasts a reload notice whenever
// a watched template path's timestamp changes.
type Server struct {
	eng   *engine.Engine
	vfs   VFSWatcher
	paths []string

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	known   map[string]time.Time

	pollInterval time.Duration
	stop         chan struct{}
}

// New builds a Server watching paths through vfs, clearing eng's cache and
// broadcasting a reload notice whenever one changes. The poll interval
// defaults to one second; override it with SetPollInterval before calling
// Watch.
func New(eng *engine.Engine, vfs VFSWatcher, paths []string) *Server {
	s := &Server{
		eng:   eng,
		vfs:   vfs,
		paths: paths,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:      map[*websocket.Conn]bool{},
		known:        map[string]time.Time{},
		pollInterval: time.Second,
		stop:         make(chan struct{}),
	}
	for _, p := range paths {
		if ts, err := vfs.Timestamp(p); err == nil {
			s.known[p] = ts
		}
	}
	return s
}

// SetPollInterval overrides the default one-second watch-loop cadence;
// call before Watch.
func (s *Server) SetPollInterval(d time.Duration) { s.pollInterval = d }

// ServeWS is the HTTP handler for the reload channel; mount it at "/ws" (or
// wherever the dev page's client script expects it).
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Watch runs the poll loop until Stop is called, clearing the engine's
// cache and broadcasting "reload" the moment any watched path's timestamp
// moves.
func (s *Server) Watch() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

func (s *Server) pollOnce() {
	changed := false
	s.mu.Lock()
	for _, p := range s.paths {
		ts, err := s.vfs.Timestamp(p)
		if err != nil {
			continue
		}
		if prev, ok := s.known[p]; !ok || !prev.Equal(ts) {
			s.known[p] = ts
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.eng.ClearCache()
		s.broadcast("reload")
	}
}

func (s *Server) broadcast(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			log.Printf("devserver: dropping client after write error: %v", err)
			delete(s.clients, conn)
			conn.Close()
		}
	}
}

// Stop ends the poll loop started by Watch and closes every connected
// client.
func (s *Server) Stop() {
	close(s.stop)
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

// ListenAndServe starts an HTTP server exposing ServeWS at "/ws" and runs
// Watch in the background; it blocks until the server errors or is
// shut down.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	go s.Watch()
	defer s.Stop()
	return fmt.Errorf("devserver: %w", (&http.Server{Addr: addr, Handler: mux}).ListenAndServe())
}
