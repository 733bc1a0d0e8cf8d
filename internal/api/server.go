package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/firmware"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/paging"
	"github.com/nerrad567/tracker-core/internal/reconcile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 5 * time.Second

// HealthChecker is implemented by every connection the core depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is a named HealthChecker reported by /health.
type Check struct {
	Name    string
	Checker HealthChecker
}

// ReconcileRunner runs one repair pass.
type ReconcileRunner interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

// FirmwareSource returns the current latest firmware.
type FirmwareSource interface {
	Latest(ctx context.Context) (*firmware.Firmware, error)
}

// DeviceLister pages through devices; only totals are used.
type DeviceLister interface {
	List(ctx context.Context, f device.Filter, page paging.Page) (paging.Result[device.Device], error)
}

// QueueStats reports the depth of the notification outbox.
type QueueStats interface {
	Len() int
	Cap() int
}

// Deps holds the dependencies required by the server.
type Deps struct {
	Listen     string
	Logger     *logging.Logger
	Version    string
	DB         *database.DB // optional, adds pool stats to /api/v1/system
	Checks     []Check
	Devices    DeviceLister
	Firmware   FirmwareSource
	Reconciler ReconcileRunner
	Outbox     QueueStats // optional
}

// Server is the operational HTTP server.
type Server struct {
	listen     string
	logger     *logging.Logger
	version    string
	db         *database.DB
	checks     []Check
	devices    DeviceLister
	firmware   FirmwareSource
	reconciler ReconcileRunner
	outbox     QueueStats
	startTime  time.Time

	// reconcileMu keeps manual passes from overlapping.
	reconcileMu sync.Mutex

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Firmware == nil || deps.Reconciler == nil {
		return nil, fmt.Errorf("devices, firmware and reconciler are required")
	}
	return &Server{
		listen:     deps.Listen,
		logger:     deps.Logger,
		version:    deps.Version,
		db:         deps.DB,
		checks:     deps.Checks,
		devices:    deps.Devices,
		firmware:   deps.Firmware,
		reconciler: deps.Reconciler,
		outbox:     deps.Outbox,
		startTime:  time.Now(),
	}, nil
}

// Start binds the listen address and serves in a background goroutine.
// A bind failure is returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		s.logger.Info("ops server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts the server down, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("ops server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down ops server: %w", err)
	}
	return nil
}
