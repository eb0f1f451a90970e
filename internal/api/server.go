package api

import (
	"context"
	"net/http"
	"time"

	"github.com/placebook/placebook/internal/auth"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/service/place"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Places *place.Service
	Images imagestore.Store
	Tokens *auth.Tokens
	Health *HealthChecker
	// ImageDir is served under /uploads/images when set (local image backend).
	ImageDir       string
	MaxUploadBytes int64
	Logger         *logger.Logger
}

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	places := NewPlacesHandler(deps.Places, deps.Images, deps.MaxUploadBytes, deps.Logger)
	router := SetupRoutes(cfg, places, deps.Health, deps.Tokens, deps.ImageDir)
	return &Server{
		config:  cfg,
		handler: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
