// Package api provides HTTP handlers and the main API server logic for SalesPipe.
//
// It exposes RESTful endpoints for submitting customer messages, receiving
// Twilio webhooks, and inspecting or resetting sessions.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/messaging"
)

// Default server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRequestTimeout  = 60 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the SalesPipe HTTP surface.
type Server struct {
	engine     *flow.Engine
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer wires a server from the turn engine and the outbound channel.
func NewServer(engine *flow.Engine, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{engine: engine, msgService: msgService}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", s.messagesHandler)
	mux.HandleFunc("POST /webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/reset", s.resetSessionHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  DefaultRequestTimeout,
		WriteTimeout: DefaultRequestTimeout,
	}
	return s
}

// Run starts the server and the inbound consumer, blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.msgService.Start(ctx); err != nil {
		return fmt.Errorf("messaging service failed to start: %w", err)
	}
	go s.consumeInbound(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: SalesPipe API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := s.msgService.Stop(); err != nil {
		slog.Error("Server.Run: messaging service stop failed", "error", err)
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

// consumeInbound drains the messaging service's inbound channel, running one
// turn per message and sending the reply back over the same channel. A single
// consumer keeps turns for a session serialized.
func (s *Server) consumeInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgService.Responses():
			if !ok {
				return
			}
			s.handleInbound(ctx, msg)
		}
	}
}

func (s *Server) handleInbound(ctx context.Context, msg messaging.InboundMessage) {
	reply, err := s.engine.ProcessTurn(ctx, msg.From, flow.TurnInput{
		UserText: msg.Body,
		HasImage: msg.HasImage,
	})
	if err != nil {
		slog.Error("Server.handleInbound: turn failed", "error", err, "sessionID", msg.From)
		return
	}
	if reply == "" {
		return
	}
	if err := s.msgService.SendMessage(ctx, msg.From, reply); err != nil {
		slog.Error("Server.handleInbound: send failed", "error", err, "sessionID", msg.From)
	}
}
