package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/internal/store"
)

// Server exposes a read-only HTTP view of recorded runs and traces. It
// never executes scenarios; everything it serves comes from storage.
type Server struct {
	router  *gin.Engine
	storage *storage.Store
	history *store.HistoryStore
}

// NewServer builds a server over the JSON storage and the optional
// history index (nil disables history endpoints).
func NewServer(st *storage.Store, history *store.HistoryStore) (*Server, error) {
	if st == nil {
		return nil, errors.New("api: nil storage")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		router:  r,
		storage: st,
		history: history,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/traces/:id", s.handleGetTrace)
	api.GET("/history/:scenario", s.handleHistory)
}

// Run starts the HTTP listener.
func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
