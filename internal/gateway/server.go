// Package gateway is the HTTP surface of the agent: signed webhook
// endpoints for the messaging platforms and a WebSocket event stream for
// operator dashboards.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/hooks"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/routing"
	"github.com/tiendi/tiendi/internal/version"
)

// MessageRouter processes inbound customer messages. Satisfied by the
// routing router.
type MessageRouter interface {
	Ingest(ctx context.Context, businessID string, ch domain.ChannelType, senderID, text, externalMessageID string) (*routing.Outcome, error)
}

// ConversationAdmin is the operator-side conversation surface. Satisfied
// by the conversation store.
type ConversationAdmin interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Resume(ctx context.Context, id string) error
}

// Server is the Tiendi webhook HTTP + WebSocket server.
type Server struct {
	cfg    config.Config
	log    *logging.Logger
	router MessageRouter
	convs  ConversationAdmin
	events *EventHub
	hooks  *hooks.Manager

	version    string
	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the webhook server.
type ServerOption func(*Server)

// WithEventHub uses an externally created hub, so the same hub can be
// wired as the processing notifier before the server exists.
func WithEventHub(h *EventHub) ServerOption {
	return func(s *Server) {
		s.events = h
	}
}

// WithConversations enables the operator hand-back endpoint.
func WithConversations(c ConversationAdmin) ServerOption {
	return func(s *Server) {
		s.convs = c
	}
}

// WithHooks attaches a lifecycle event bus for server start/stop events.
func WithHooks(m *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = m
	}
}

// New creates a webhook server.
func New(cfg config.Config, router MessageRouter, log *logging.Logger, opts ...ServerOption) *Server {
	gwLog := log.Sub("gateway")
	s := &Server{
		cfg:     cfg,
		log:     gwLog,
		router:  router,
		events:  NewEventHub(gwLog),
		version: version.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the operator event hub, for wiring as the processing
// notifier.
func (s *Server) Events() *EventHub { return s.events }

// checkWebSocketOrigin returns a function that validates WebSocket Origin
// headers. With no configured origins only same-origin or non-browser
// clients are allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /webhooks/{channel}", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhooks/{channel}", s.handleWebhook)
	mux.HandleFunc("POST /conversations/{id}/resume", s.handleResume)

	mux.HandleFunc("/", handleNotFound)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	handler := withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Server.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLS.CertPath, s.cfg.Server.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Server.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, webhook traffic should terminate TLS at a proxy")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Strs("channels", s.configuredChannels()).
		Msg("webhook server ready")
	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down webhook server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.events.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) configuredChannels() []string {
	var names []string
	if s.cfg.Channels.WhatsApp != nil {
		names = append(names, "whatsapp")
	}
	if s.cfg.Channels.Messenger != nil {
		names = append(names, "messenger")
	}
	if s.cfg.Channels.Instagram != nil {
		names = append(names, "instagram")
	}
	return names
}

// authorizedOperator checks the admin token on operator endpoints. An
// empty configured token disables them entirely.
func (s *Server) authorizedOperator(r *http.Request) bool {
	token := s.cfg.Server.AdminToken
	if token == "" {
		return false
	}
	provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if provided == "" || provided == r.Header.Get("Authorization") {
		provided = r.URL.Query().Get("token")
	}
	return safeEqual(provided, token)
}

// handleEvents upgrades an operator connection to the event stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedOperator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.log.Sub("ws"))

	hello, err := NewEvent(EventHello, HelloPayload{
		Version: s.version,
		Events:  []string{EventTyping, EventMessage, EventEscalated, EventOrderCreated},
	}, 0)
	if err == nil {
		client.Send(hello)
	}

	s.events.Add(client)
	defer func() {
		s.events.Remove(client.ConnID)
		client.Close()
	}()

	// The stream is push-only; reads only detect disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("operator stream closed")
			}
			return
		}
	}
}
