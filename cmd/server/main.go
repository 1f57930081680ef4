/*
Package main is the entry point of the relay chat server.

It loads configuration, initializes the global logging system, opens the optional
participant journal, starts the TCP relay and the admin HTTP server, and handles operating
system interrupt signals (SIGINT, SIGTERM): acceptance stops at once and the process exits
after every connected client has gone.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/db"
	"relaychat/internal/app/journal"
	"relaychat/internal/configs"
	"relaychat/internal/handler"
	"relaychat/internal/pkg/logx"
)

func main() {
	if err := run(); err != nil {
		logx.Fatal(err, "Server stopped with an error")
	}
}

func run() error {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddress()).
		Int("admin_port", cfg.AdminPort).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("journal", cfg.JournalEnabled()).
		Uint32("max_frame_size", cfg.MaxFrameSize).
		Int("outbound_queue_size", cfg.OutboundQueueSize).
		Str("overflow_policy", cfg.OverflowPolicy).
		Dur("write_timeout", cfg.WriteTimeout).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := chat.ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return err
	}

	// Optional participant journal
	var (
		observer chat.Observer
		pj       *journal.Journal
	)
	if cfg.JournalEnabled() {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open journal database: %w", err)
		}
		defer pool.Close()

		pj = journal.New(journal.NewPostgresStore(pool), cfg.JournalBuffer)
		observer = pj
		logx.Info("Participant journal enabled.")
	}

	router := chat.NewRouter(chat.NewRegistry(), observer)
	supervisor := chat.NewSupervisor(router, chat.Options{
		MaxFrameSize: cfg.MaxFrameSize,
		QueueSize:    cfg.OutboundQueueSize,
		Policy:       policy,
		WriteTimeout: cfg.WriteTimeout,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddress())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress(), err)
	}

	// Setup admin HTTP server and routes
	var server *http.Server
	if addr := cfg.AdminAddress(); addr != "" {
		deps := &handler.AppDeps{Supervisor: supervisor, Config: cfg}
		if pj != nil {
			deps.Journal = pj
		}

		server = &http.Server{
			Addr:         addr,
			Handler:      handler.Router(deps),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			logx.Info(fmt.Sprintf("Admin HTTP server starting on http://%s", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error(err, "Admin HTTP server failed")
			}
		}()
	}

	logx.Info(fmt.Sprintf("Relay Chat Server accepting connections on %s", ln.Addr()))

	// Serve blocks until the signal arrives and every connection has ended.
	serveErr := supervisor.Serve(ctx, ln)
	logx.Info("Relay stopped accepting connections and all sessions ended.")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Admin HTTP server forced to shutdown")
		}
	}

	if pj != nil {
		if err := pj.Close(shutdownCtx); err != nil {
			logx.Error(err, "Participant journal did not drain", "dropped", pj.Dropped())
		}
	}

	if serveErr != nil {
		return fmt.Errorf("relay listener: %w", serveErr)
	}

	logx.Info("Server gracefully stopped.")
	return nil
}
