package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/restset/internal/auth"
	"github.com/claude/restset/internal/config"
	"github.com/claude/restset/internal/mcp"
	"github.com/claude/restset/internal/progress"
	"github.com/claude/restset/internal/server"
	"github.com/claude/restset/internal/service"
	"github.com/claude/restset/internal/session"
	"github.com/claude/restset/internal/storage"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	clearProgress := flag.Bool("clear-progress", false, "delete all persisted workout progress and exit")
	issueToken := flag.String("issue-token", "", "print a bearer token for this login and exit (jwt mode)")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of tokens made by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	log.Info("restset starting", "version", Version)

	if *issueToken != "" {
		token, err := auth.Issue(auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer}, *issueToken, *issueToken, *tokenTTL)
		if err != nil {
			log.Error("issuing token failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if *clearProgress {
		states, err := progress.OpenSQLiteStore(cfg.Progress.StateDir)
		if err != nil {
			log.Error("failed to open progress store", "dir", cfg.Progress.StateDir, "error", err)
			os.Exit(1)
		}
		defer states.Close()
		if err := progress.ClearAll(states); err != nil {
			log.Error("clearing progress failed", "error", err)
			os.Exit(1)
		}
		log.Info("all persisted progress cleared")
		return
	}

	// Progress store (local SQLite key-value file, memory when unavailable)
	states := progress.OpenStore(cfg.Progress.StateDir, log)
	defer states.Close()

	ctx := context.Background()

	// Workout store
	var repo service.Repository
	if cfg.Database.Driver == config.DriverMemory {
		if *migrateOnly {
			log.Info("memory driver has no migrations: exiting")
			return
		}
		repo = storage.NewMemory()
		log.Info("using in-memory workout store")
	} else {
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		if *migrateOnly {
			log.Info("migrate-only: exiting")
			return
		}

		db, err := storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")
		repo = db
	}

	sessions := session.NewManager(states, session.NewHub(), log, session.WithInterval(cfg.Progress.TickInterval))
	defer sessions.Close()
	evictCtx, stopEvict := context.WithCancel(ctx)
	defer stopEvict()
	go sessions.Run(evictCtx)
	svc := service.New(repo, sessions, log)

	// Start listener: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server
	var identity func(http.Handler) http.Handler

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		if cfg.Auth.Mode == config.AuthTailscale {
			lc, err := tsServer.LocalClient()
			if err != nil {
				log.Error("tsnet local client failed", "error", err)
				os.Exit(1)
			}
			identity = server.TailscaleIdentity(lc, svc, log)
		}

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "auth", cfg.Auth.Mode)
	}

	switch cfg.Auth.Mode {
	case config.AuthJWT:
		identity = server.BearerIdentity(auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer}, svc, log)
	case config.AuthDev:
		id, err := svc.EnsureUser(ctx, server.DevLogin, server.DevDisplayName)
		if err != nil {
			log.Error("creating dev user failed", "error", err)
			os.Exit(1)
		}
		identity = server.StaticIdentity(id)
	}
	if identity == nil {
		log.Error("no identity source for auth mode", "mode", cfg.Auth.Mode)
		os.Exit(1)
	}

	srv := server.New(svc, repo, cfg.Auth.APIKey, log,
		server.WithIdentity(identity),
		server.WithMCP(server.NewMCPHandler(mcp.New(svc, Version, log))),
	)

	// Event streams stay open until the client leaves, so shutdown cancels them.
	baseCtx, stopStreams := context.WithCancel(ctx)
	defer stopStreams()
	httpSrv := &http.Server{
		Handler:     srv,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	httpSrv.RegisterOnShutdown(stopStreams)

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
