package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc     user.Service
		OrgSvc      org.Service
		SettingSvc  setting.Service
		PricingSvc  pricing.Service
		BillingSvc  billing.Service
		BlogSvc     blog.Service
		QuizSvc     quiz.Service
		CampaignSvc campaign.Service
		MeetingSvc  meeting.Service
		FileSvc     file.Service
		TableSvc    table.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.IPExtractor = echo.ExtractIPDirect()
	if conf.Server.TrustProxy {
		s.app.IPExtractor = echo.ExtractIPFromXFFHeader()
	}
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	limit := newRateLimiter(conf.RateLimit).middleware

	registerUserAPI(g, jwt, limit, s)
	registerSettingAPI(g, jwt, s)
	registerPricingAPI(g, jwt, s)
	registerBillingAPI(g, jwt, s)
	registerBlogAPI(g, jwt, s)
	registerQuizAPI(g, jwt, s)
	registerCampaignAPI(g, jwt, s)
	registerMeetingAPI(g, jwt, s)
	registerFileAPI(g, jwt, s)
	registerTableAPI(g, jwt, s)
}

// Start blocks serving requests; a listener failure is reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks main to stop the server gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
