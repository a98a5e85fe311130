// Package web serves the TruthGuard companion page: a check form with the
// same length rules as the popup, a JSON check API routed through the
// background orchestrator, and a live stream of alerts.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/sse"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"go.uber.org/zap"
)

//go:embed templates/*
var templatesFS embed.FS

// maxBody bounds API request bodies; valid text is at most 250 characters.
const maxBody = 16 << 10

// Backend answers checks and settings reads. The background orchestrator
// satisfies it.
type Backend interface {
	CheckCredibility(ctx context.Context, text string) protocol.CheckCredibilityResponse
	GetSettings(ctx context.Context) protocol.Response
}

// Server is the companion page HTTP server.
type Server struct {
	addr    string
	backend Backend
	events  *sse.Broadcaster
	logger  *zap.Logger
	tmpl    *template.Template

	mu     sync.Mutex
	server *http.Server
	closed bool
	// cancel ends streaming requests, which never go idle on their own.
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the companion page server. events may be nil, in which
// case /api/events is not served.
func NewServer(addr string, backend Backend, events *sse.Broadcaster, opts ...Option) (*Server, error) {
	funcMap := template.FuncMap{
		"riskClass": riskClass,
		"json":      toJSON,
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		addr:    addr,
		backend: backend,
		events:  events,
		logger:  zap.NewNop(),
		tmpl:    tmpl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /check", s.handleFormCheck)
	mux.HandleFunc("POST /api/check", s.handleAPICheck)
	mux.HandleFunc("GET /api/settings", s.handleAPISettings)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.events != nil {
		mux.Handle("GET /api/events", s.events)
	}
	return mux
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start() error {
	base, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return http.ErrServerClosed
	}
	s.cancel = cancel
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("companion page listening", zap.String("addr", s.addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	return srv.Shutdown(ctx)
}

// PageData holds data for template rendering.
type PageData struct {
	Title      string
	ServiceURL string
	MinLength  int
	MaxLength  int
	Input      string
	Result     *ResultView
	Error      string
}

// ResultView is a check outcome prepared for display.
type ResultView struct {
	Score       int
	Level       credibility.RiskLevel
	Label       string
	Description string
	Category    string
	Explanation string
	Tip         string
	Flags       []string
}

func newResultView(r credibility.CheckResult) (*ResultView, bool) {
	level, ok := r.Risk()
	if !ok {
		return nil, false
	}
	return &ResultView{
		Score:       *r.Score,
		Level:       level,
		Label:       level.Label(),
		Description: level.Description(),
		Category:    r.HumanCategory(),
		Explanation: r.Explanation,
		Tip:         r.Tip,
		Flags:       r.Flags,
	}, true
}

func (s *Server) pageData(ctx context.Context) PageData {
	data := PageData{
		Title:     "TruthGuard",
		MinLength: credibility.MinTextLength,
		MaxLength: credibility.MaxTextLength,
	}
	if resp, ok := s.backend.GetSettings(ctx).(protocol.SettingsResponse); ok {
		data.ServiceURL = resp.ServiceURL
	}
	return data
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", s.pageData(r.Context()))
}

func (s *Server) handleFormCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	data := s.pageData(r.Context())
	data.Input = r.PostForm.Get("text")

	resp := s.check(r.Context(), data.Input)
	switch {
	case !resp.Success:
		data.Error = resp.Error
	case resp.Result != nil:
		if view, ok := newResultView(*resp.Result); ok {
			data.Result = view
		} else {
			data.Error = credibility.ErrGenericFailure
		}
	}
	s.render(w, "index.html", data)
}

type checkRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAPICheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "invalid request body"})
		return
	}

	resp := s.check(r.Context(), req.Text)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// check runs text through the backend and streams the outcome to page
// subscribers.
func (s *Server) check(ctx context.Context, text string) protocol.CheckCredibilityResponse {
	resp := s.backend.CheckCredibility(ctx, strings.TrimSpace(text))
	if s.events != nil {
		if err := s.events.Publish(sse.EventCheck, resp); err != nil {
			s.logger.Warn("publish check event", zap.Error(err))
		}
	}
	return resp
}

func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	resp := s.backend.GetSettings(r.Context())
	status := http.StatusOK
	if _, failed := resp.(protocol.ErrorResponse); failed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Template helper functions
func riskClass(level credibility.RiskLevel) string {
	switch level {
	case credibility.RiskLow, credibility.RiskMedium, credibility.RiskHigh:
		return "risk-" + string(level)
	default:
		return "risk-unknown"
	}
}

func toJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
