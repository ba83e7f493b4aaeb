package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
)

type (
	// MirrorService is what the API needs from the sync engine.
	MirrorService interface {
		Start(ctx context.Context, schoolID string) (*mirror.Task, error)
		Running(schoolID string) (*mirror.Task, bool)
		ReadLocalCache(ctx context.Context, table string, filter mirror.Filter) ([]mirror.Row, error)
		SyncStatus(ctx context.Context, schoolID string) ([]mirror.SyncState, error)
	}

	Options struct {
		Address        string
		DisableReqLogs bool
		Debug          bool
		TestMode       bool
		Logger         core.Logger
		Auth           *Auth
		Mirror         MirrorService
	}
)

type Server struct {
	opts     *Options
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal

	// background syncs started over HTTP outlive their request, not the server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func NewServer(opts *Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:       opts,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.SignalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.opts.Auth.jwtConfig())

	registerSyncAPI(s.baseCtx, v1, jwt, s.opts.Mirror)
}

// Start serves in the background; listen errors are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
			s.errors <- err
		}
	}()
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the app to stop as if it had received SIGTERM.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown stops accepting requests then cancels the syncs started in the background.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancelBase()
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.cancelBase()
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to EduRise sync API!")
}
