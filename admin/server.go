package admin

import (
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rtpsfix/rtpsd/pkg/util"
)

// Event is the JSON message Broadcast sends to every connected WebSocket
// client -- the live event stream shape stages/websocket.go's connWriter
// already implements for BGP messages, here repurposed for RTPS admin
// events. Registry changes do not trigger a Broadcast by themselves;
// events go out only when a caller invokes Broadcast.
type Event struct {
	Kind string `json:"kind"`
	Guid string `json:"guid,omitempty"`
}

// Server is the HTTP+WebSocket introspection surface: chi routes
// /snapshot and /metrics, gorilla/websocket serves /events.
type Server struct {
	zerolog.Logger

	reg *Registry
	srv *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte

	upgrader websocket.Upgrader
}

func NewServer(addr string, reg *Registry, logger zerolog.Logger) *Server {
	s := &Server{
		Logger: logger,
		reg:    reg,
		conns:  make(map[*websocket.Conn]chan []byte),
	}

	r := chi.NewRouter()
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/events", s.handleEvents)
	r.Post("/qos", s.handleQosOverride)

	s.srv = &http.Server{
		Addr:     addr,
		Handler:  r,
		ErrorLog: stdlog.New(&util.Stdlog{Logger: logger}, "", 0),
	}
	return s
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	go func() {
		<-ctx.Done()
		s.srv.Close()
	}()
	return s.srv.ListenAndServe()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.reg.Snapshot())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	WritePrometheus(w)
}

// handleQosOverride demonstrates the fast-path JSON field extraction
// stages/ris-live.go uses jsonparser for: pulling a couple of named fields
// out of a small admin request body without a full struct unmarshal.
func (s *Server) handleQosOverride(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	guid, err := jsonparser.GetString(body, "guid")
	if err != nil {
		http.Error(w, "missing guid", http.StatusBadRequest)
		return
	}
	reliable, _ := jsonparser.GetBoolean(body, "reliable")
	s.Info().Str("guid", guid).Bool("reliable", reliable).Msg("qos override requested")
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents registers conn with its own outbound queue and hands
// writing off to a dedicated goroutine, so socket writes never run on the
// Broadcast caller's goroutine; once a slow client's 16-message queue is
// full, Broadcast blocks on it until the queue drains (mirrors the
// one-writer-goroutine-per-connection shape pkg/util's channel helpers
// were written for).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	out := make(chan []byte, 16)
	s.mu.Lock()
	s.conns[conn] = out
	s.mu.Unlock()

	go s.writeLoop(conn, out)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		util.Close(out)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, out chan []byte) {
	for b := range out {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// Broadcast pushes ev to every connected admin client's outbound queue.
// util.Send absorbs the race between a slow/closing writeLoop tearing
// down its channel and Broadcast still holding a reference to it.
func (s *Server) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, out := range s.conns {
		if !util.Send(out, b) {
			delete(s.conns, conn)
		}
	}
}
