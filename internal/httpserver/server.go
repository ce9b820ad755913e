package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const defaultShutdownTimeout = 5 * time.Second

// Timeouts bounds the phases of a connection. Zero values fall back to
// 15s read, 15s write and 60s idle.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// Server wraps http.Server with validation and graceful shutdown.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration

	mutex sync.Mutex
	addr  net.Addr
}

// New validates addr and prepares a server for handler.
func New(addr string, handler http.Handler, timeouts Timeouts) (*Server, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  orDefault(timeouts.Read, 15*time.Second),
			WriteTimeout: orDefault(timeouts.Write, 15*time.Second),
			IdleTimeout:  orDefault(timeouts.Idle, 60*time.Second),
		},
		shutdownTimeout: orDefault(timeouts.Shutdown, defaultShutdownTimeout),
	}

	return srv, nil
}

// Start listens and serves until the server is shut down.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.setAddr(ln.Addr())

	err = s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

func (s *Server) setAddr(addr net.Addr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.addr = addr
}

// ValidateAddress checks a listen address in host:port form. The host may
// be empty.
func ValidateAddress(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if err := is.Digit.Validate(port); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
