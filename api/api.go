// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the HTTP interface for ballot submission, result
// building and typed data hashing
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"
)

const (
	DefaultListenAddress = ":8545"
	DefaultMaxBodyBytes  = 1 << 20
)

type ServerConfig struct {
	Logger *slog.Logger
	// Gatherer is served on /metrics when set
	Gatherer        prometheus.Gatherer
	ListenAddress   string
	TlsCertFilePath string
	TlsKeyFilePath  string
	// MaxConnections limits concurrent connections. Zero means no limit.
	MaxConnections int
	MaxBodyBytes   int64
}

// Server is the offvote HTTP API server
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	backend    Backend
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
}

func New(cfg ServerConfig, backend Backend) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		config:  cfg,
		logger:  cfg.Logger.With("component", "api"),
		backend: backend,
	}
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/ballots", s.handleAddBallot)
	mux.HandleFunc("GET /v1/proposals/{id}/ballots", s.handleListBallots)
	mux.HandleFunc("POST /v1/proposals/{id}/result", s.handleBuildResult)
	mux.HandleFunc("GET /v1/proposals/{id}/result", s.handleGetResult)
	mux.HandleFunc("GET /v1/proposals/{id}/steps/{index}", s.handleGetStep)
	mux.HandleFunc("GET /v1/proposals/{id}/report", s.handleGetReport)
	mux.HandleFunc("GET /v1/results", s.handleListResults)
	mux.HandleFunc("POST /v1/hash", s.handleHash)
	mux.Handle(
		grpchealth.NewHandler(&healthChecker{backend: s.backend}),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1Alpha(
			grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName),
		),
	)
	if s.config.Gatherer != nil {
		mux.Handle(
			"GET /metrics",
			promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}),
		)
	}
	return mux
}

// Start binds the listener and serves in a background goroutine. The
// server shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	useTls := s.config.TlsCertFilePath != "" && s.config.TlsKeyFilePath != ""
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		ReadHeaderTimeout: 60 * time.Second,
	}
	if useTls {
		server.Handler = s.Handler()
	} else {
		// Use h2c so we can serve HTTP/2 without TLS
		server.Handler = h2c.NewHandler(s.Handler(), &http2.Server{})
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	if useTls {
		cert, err := tls.LoadX509KeyPair(
			s.config.TlsCertFilePath,
			s.config.TlsKeyFilePath,
		)
		if err != nil {
			ln.Close()
			s.mu.Unlock()
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, server.TLSConfig)
	}
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}
	s.httpServer = server
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	s.logger.Info(
		"API listener started",
		"address", ln.Addr().String(),
		"tls", useTls,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil when not started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

type healthChecker struct {
	backend Backend
}

func (h *healthChecker) Check(
	ctx context.Context,
	req *grpchealth.CheckRequest,
) (*grpchealth.CheckResponse, error) {
	if req.Service != "" && req.Service != grpchealth.HealthV1ServiceName {
		return &grpchealth.CheckResponse{Status: grpchealth.StatusUnknown}, nil
	}
	if err := h.backend.Healthy(ctx); err != nil {
		return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
	}
	return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
}
