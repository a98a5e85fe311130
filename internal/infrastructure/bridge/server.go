package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ContextID identifies messages that arrived over the bridge.
const ContextID messaging.ContextID = "bridge"

// Server upgrades connections and forwards their frames onto a bus.
type Server struct {
	bus      *messaging.Bus
	upgrader websocket.Upgrader
	logger   *zap.Logger
	server   *http.Server

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a bridge onto bus.
func NewServer(bus *messaging.Bus, opts ...ServerOption) *Server {
	s := &Server{
		bus:    bus,
		logger: zap.NewNop(),
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on addr and serves the bridge at path until Shutdown.
func (s *Server) Start(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, s)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("bridge listening", zap.String("addr", addr), zap.String("path", path))
	return srv.ListenAndServe()
}

// Shutdown closes open connections and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// ServeHTTP upgrades the request and serves frames until the peer leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.serve(conn, r.RemoteAddr)
}

func (s *Server) serve(conn *websocket.Conn, remote string) {
	ctx, cancel := context.WithCancel(context.Background())
	var (
		inflight sync.WaitGroup
		writeMu  sync.Mutex
	)
	defer func() {
		cancel()
		inflight.Wait()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	from := messaging.Sender{Context: ContextID, URL: remote}
	s.logger.Debug("bridge client connected", zap.String("remote", remote))

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			s.logger.Debug("bridge client disconnected", zap.String("remote", remote), zap.Error(err))
			return
		}

		inflight.Add(1)
		go func(f frame) {
			defer inflight.Done()
			out := s.handle(ctx, from, f)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(out); err != nil {
				s.logger.Debug("bridge write failed", zap.String("id", f.ID), zap.Error(err))
			}
		}(f)
	}
}

func (s *Server) handle(ctx context.Context, from messaging.Sender, f frame) reply {
	out := reply{ID: f.ID}
	fail := func(err error) reply {
		out.Code = errorCode(err)
		out.Error = err.Error()
		return out
	}

	req, err := protocol.DecodeRequest(f.Request)
	if err != nil {
		return fail(err)
	}
	to := messaging.ContextID(f.To)
	if to == "" {
		to = messaging.Background
	}

	if f.Post {
		if err := s.bus.Post(from, to, req); err != nil {
			return fail(err)
		}
		return out
	}

	resp, err := s.bus.Send(ctx, from, to, req)
	if err != nil {
		return fail(err)
	}
	if resp != nil {
		raw, err := json.Marshal(resp)
		if err != nil {
			return fail(err)
		}
		out.Response = raw
	}
	return out
}
