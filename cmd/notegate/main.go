package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/notegate/notegate/cmd/notegate/cli"
	"github.com/notegate/notegate/internal/admin"
	"github.com/notegate/notegate/internal/app"
	"github.com/notegate/notegate/internal/notes"
	"github.com/notegate/notegate/internal/oauth"
	"github.com/notegate/notegate/internal/observability"
	"github.com/notegate/notegate/internal/platform/db"
	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
	"github.com/notegate/notegate/internal/volsync"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create data directory", slog.Any("error", err))
			os.Exit(1)
		}
	}

	handle, err := db.Open(ctx, cfg.SQLitePath)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("database close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var syncer volsync.Syncer = volsync.Noop{}
	if replicaCfg, ok := cfg.Replica(); ok {
		replica, err := volsync.NewS3Replica(ctx, replicaCfg, cfg.SQLitePath, logger)
		if err != nil {
			logger.Error("configure replica", slog.Any("error", err))
			os.Exit(1)
		}
		replica.SetMetrics(metrics)
		syncer = replica
	}

	st := store.New(handle, syncer, logger)
	if err := st.InitSchema(ctx); err != nil {
		if !errors.Is(err, shared.ErrPersistenceWarning) {
			logger.Error("init schema", slog.Any("error", err))
			os.Exit(1)
		}
		// The DDL committed locally; a failed replica flush must not block
		// startup.
		logger.Warn("init schema", slog.Any("error", err))
	}

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, logger, st, os.Args[1:]))
	}

	if cfg.BootstrapAdminEmail != "" {
		err := st.AddAllowedEmail(ctx, cfg.BootstrapAdminEmail, "system", true)
		if err != nil && !errors.Is(err, shared.ErrPersistenceWarning) {
			logger.Error("bootstrap admin", slog.Any("error", err))
			os.Exit(1)
		}
	}

	sessionManager := shared.NewSessionManager("notegate_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authz := shared.Authz{Users: st, Logger: logger}

	var provider oauth.Provider
	if oauthCfg := cfg.OAuth(); oauthCfg.Configured() {
		provider = oauth.NewGoogleProvider(oauthCfg)
	} else {
		logger.Warn("google oauth is not configured; logins will be unavailable")
	}

	oauthHandler := oauth.NewHandler(logger, st, templates, sessionManager, csrfManager, provider)
	oauthHandler.SetMetrics(metrics)
	notesHandler := notes.NewHandler(logger, st, templates, csrfManager, authz)
	adminHandler := admin.NewHandler(logger, st, templates, csrfManager, authz)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Store:          st,
		Authz:          authz,
		OAuthHandler:   oauthHandler,
		NotesHandler:   notesHandler,
		AdminHandler:   adminHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCommand(ctx context.Context, logger *slog.Logger, st *store.Store, args []string) int {
	adminCLI := cli.NewAdminCLI(st, logger)

	var err error
	switch args[0] {
	case "init-admin":
		if len(args) < 2 {
			err = errors.New("usage: notegate init-admin <email>")
			break
		}
		err = adminCLI.InitAdmin(ctx, args[1])
	case "list-users":
		err = adminCLI.ListUsers(ctx, os.Stdout)
	case "make-admin":
		if len(args) < 2 {
			err = errors.New("usage: notegate make-admin <email>")
			break
		}
		err = adminCLI.MakeAdmin(ctx, args[1])
	default:
		err = fmt.Errorf("unknown command %q (want init-admin, list-users, or make-admin)", args[0])
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
