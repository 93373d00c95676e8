// Package server implements the Awalnet lobby and game server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server is the main Awalnet server: one TCP listener, a bounded session
// registry, the live game table and the win-count leaderboard.
type Server struct {
	cfg      Config
	registry *Registry
	games    *GameManager
	ranking  *Leaderboard
	metrics  *Metrics
	ln       net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxClients),
		games:    NewGameManager(cfg.MaxGames),
		ranking:  NewLeaderboard(),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Games returns the live game table.
func (s *Server) Games() *GameManager {
	return s.games
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the TCP listener and begins accepting connections. It does
// not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln
	slog.Info("lobby listening", "addr", ln.Addr().String())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					slog.Error("accept error", "err", err)
					continue
				}
			}
			go s.handleConn(conn)
		}
	}()

	return nil
}

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	if s.cfg.MetricsInterval > 0 {
		s.metrics.StartPeriodicLog(time.Duration(s.cfg.MetricsInterval), s.ctx.Done())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: the listener closes first so no
// new sessions arrive, then every live session's socket is closed, which
// unwinds the per-connection goroutines and any running games.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, sess := range s.registry.Snapshot() {
		_ = sess.Conn.Close()
	}
}
