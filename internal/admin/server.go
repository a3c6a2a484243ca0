package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/logger"
)

// Server runs the admin router on a TCP address.
type Server struct {
	addr   string
	srv    *http.Server
	ln     net.Listener
	logger *logger.Logger
}

func NewServer(addr string, h *Handler, log *logger.Logger) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("Admin API listening on %s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin API stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
