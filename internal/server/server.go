// Package server wires storage, services and handlers together and runs the
// HTTP server.
//
// New is the composition root: it opens the configured balance backend, builds
// the services on top of it, and mounts the handlers on a chi router. Start
// serves until SIGINT/SIGTERM and then shuts down in order: HTTP first, then
// the resolver worker, then the database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/clickforcharity/internal/alert"
	"github.com/sakif/clickforcharity/internal/auth"
	"github.com/sakif/clickforcharity/internal/config"
	"github.com/sakif/clickforcharity/internal/handler"
	"github.com/sakif/clickforcharity/internal/middleware"
	"github.com/sakif/clickforcharity/internal/profilesource"
	"github.com/sakif/clickforcharity/internal/repository"
	"github.com/sakif/clickforcharity/internal/repository/filestore"
	sqliteRepo "github.com/sakif/clickforcharity/internal/repository/sqlite"
	"github.com/sakif/clickforcharity/internal/resolver"
	"github.com/sakif/clickforcharity/internal/service"
)

// Handlers are the mounted endpoint groups. Auth, Admin and Tokens are nil when
// admin login is not configured; the admin routes are then not mounted.
type Handlers struct {
	Balance  *handler.BalanceHandler
	Tasks    *handler.TaskHandler
	Profile  *handler.ProfileHandler
	Resolver *handler.ResolverHandler
	Auth     *handler.AuthHandler
	Admin    *handler.AdminHandler
	Tokens   *auth.TokenService
}

// NewRouter builds the route table.
//
//	GET  /healthz
//	GET  /api/get-ads, /api/get-simple-tasks, /api/get-complex-tasks,
//	     /api/get-banner-ads, /api/get-skipped-tasks
//	POST /api/update_balance, /api/write_balance   GET /api/get_balance
//	POST /api/update-user-tasks, /api/unskip-task, /api/reset-tasks
//	GET  /api/get-user-platforms                   POST /api/update-user-platforms
//	GET  /api/simple-profile, /api/resolver-status, /api/check-role
//	POST /auth/admin/login, /auth/logout
//	admin only: GET|POST /api/admin/{kind}, POST|DELETE /api/admin/{kind}/{id},
//	            POST /api/admin/resolve-conflicts
func NewRouter(h Handlers, logger *slog.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !allowsAny(corsOrigins),
		MaxAge:           300,
	}).Handler)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	r.Get("/healthz", handler.HandleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/get-ads", h.Tasks.HandleGetAds)
		r.Get("/get-simple-tasks", h.Tasks.HandleGetSimpleTasks)
		r.Get("/get-complex-tasks", h.Tasks.HandleGetComplexTasks)
		r.Get("/get-banner-ads", h.Tasks.HandleGetBannerAds)
		r.Get("/get-skipped-tasks", h.Tasks.HandleGetSkippedTasks)
		r.Post("/update-user-tasks", h.Tasks.HandleUpdateUserTasks)
		r.Post("/unskip-task", h.Tasks.HandleUnskipTask)
		r.Post("/reset-tasks", h.Tasks.HandleResetTasks)

		r.Post("/update_balance", h.Balance.HandleUpdateBalance)
		r.Post("/write_balance", h.Balance.HandleWriteBalance)
		r.Get("/get_balance", h.Balance.HandleGetBalance)

		r.Get("/simple-profile", h.Profile.HandleSimpleProfile)
		r.Get("/get-user-platforms", h.Profile.HandleGetUserPlatforms)
		r.Post("/update-user-platforms", h.Profile.HandleUpdateUserPlatforms)

		r.Get("/resolver-status", h.Resolver.HandleStatus)

		if h.Auth == nil {
			return
		}
		r.Get("/check-role", h.Auth.HandleCheckRole)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(h.Tokens))
			r.Post("/resolve-conflicts", h.Resolver.HandleResolve)
			r.Get("/{kind}", h.Admin.HandleList)
			r.Post("/{kind}", h.Admin.HandleCreate)
			r.Post("/{kind}/{id}", h.Admin.HandleDelete)
			r.Delete("/{kind}/{id}", h.Admin.HandleDelete)
		})
	})

	if h.Auth != nil {
		r.Post("/auth/admin/login", h.Auth.HandleLogin)
		r.Post("/auth/logout", h.Auth.HandleLogout)
	}

	return r
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Server owns the router, the storage handles and the resolver worker.
type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	worker *resolver.Worker
	db     *sqliteRepo.DB // nil with the file backend
}

// New builds the whole dependency graph from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}

	s := &Server{config: cfg, logger: logger}

	var (
		balances  repository.BalanceRepository = store
		recorders                              = []repository.RunRecorder{store}
	)
	if cfg.BalanceBackend == config.BackendSQLite {
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.db = db
		balances = db
		recorders = append(recorders, db)
	}

	notifier, err := NewNotifier(cfg, logger)
	if err != nil {
		s.closeDB()
		return nil, err
	}

	profileRepo := store.Profiles()
	source := profilesource.New(profilesource.Config{
		URL:          cfg.ProfileSourceURL,
		Timeout:      cfg.ProfileSourceTimeout,
		ClientID:     cfg.ProfileClientID,
		ClientSecret: cfg.ProfileClientSecret,
		TokenURL:     cfg.ProfileTokenURL,
	})

	profiles := service.NewProfileService(profileRepo, balances, source, logger)
	balanceSvc := service.NewBalanceService(balances, profileRepo, profiles, cfg.TxCap, logger)
	content := service.NewContentService(store.Content(logger), cfg.SoftDeleteGrace, cfg.AdCooldown, logger)
	tasks := service.NewTaskService(content, profileRepo, balanceSvc, logger)
	platforms := service.NewPlatformService(profileRepo, balanceSvc, cfg.PlatformReward, logger)

	res := resolver.New(store, balances, logger,
		resolver.WithRecorders(recorders...),
		resolver.WithNotifier(notifier),
		resolver.WithTxCap(cfg.TxCap),
	)
	s.worker = resolver.NewWorker(res, cfg.ReconcileInterval, logger)

	h := Handlers{
		Balance:  handler.NewBalanceHandler(balanceSvc, logger),
		Tasks:    handler.NewTaskHandler(tasks, content, logger),
		Profile:  handler.NewProfileHandler(profiles, platforms, logger),
		Resolver: handler.NewResolverHandler(res, recorders[len(recorders)-1], cfg.ResolverOverdue, notifier, logger),
	}

	if cfg.AdminEnabled() {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.DefaultTokenTTL)
		if err != nil {
			s.closeDB()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
		admin := service.NewAdminAuthService(cfg.AdminUsername, cfg.AdminPasswordHash, tokens, auth.NewPasswordService(), logger)
		h.Tokens = tokens
		h.Auth = handler.NewAuthHandler(admin, tokens.TTL(), cfg.SecureCookies, logger)
		h.Admin = handler.NewAdminHandler(content, logger)
	} else {
		logger.Warn("admin routes disabled: JWT_SECRET or ADMIN_PASSWORD_HASH not set")
	}

	s.router = NewRouter(h, logger, cfg.CORSOrigins)
	return s, nil
}

// NewNotifier sends operator alerts to the log and, when configured, Telegram.
func NewNotifier(cfg *config.Config, logger *slog.Logger) (alert.Notifier, error) {
	n := alert.Multi{alert.Log{Logger: logger}}
	if cfg.TelegramEnabled() {
		tg, err := alert.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("creating telegram notifier: %w", err)
		}
		n = append(n, tg)
	}
	return n, nil
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until a shutdown signal or a listener error.
func (s *Server) Start() error {
	defer s.closeDB()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("data_dir", s.config.DataDir),
			slog.String("balance_backend", s.config.BalanceBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
