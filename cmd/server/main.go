/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cuentas-bot service: the chat webhook, the
  back-office API and the background close queue share one process.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (yaml + .env overrides)
  3. Open SQLite store
  4. Wire ledger engine, identity resolver, conversation machine
  5. Register close jobs on the queue runner and start it
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to config.yaml (default: config.yaml)
  -port    Override the configured HTTP port
  -db      Override the configured SQLite path
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (30s drain)
  2. Stop the queue runner, draining in-flight jobs
  3. Stop the session janitor
  4. Close the database

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illeiva2/cuentas-bot/api"
	"github.com/illeiva2/cuentas-bot/bulkimport"
	"github.com/illeiva2/cuentas-bot/closing"
	"github.com/illeiva2/cuentas-bot/config"
	"github.com/illeiva2/cuentas-bot/conversation"
	"github.com/illeiva2/cuentas-bot/docgen"
	"github.com/illeiva2/cuentas-bot/identity"
	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/logger"
	"github.com/illeiva2/cuentas-bot/queue"
	"github.com/illeiva2/cuentas-bot/store/sqlite"
	"github.com/illeiva2/cuentas-bot/transport/meta"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	port := flag.String("port", "", "override HTTP port")
	dbPath := flag.String("db", "", "override SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	// Domain wiring.
	engine := ledger.NewEngine(store)
	resolver := identity.NewResolver(store, log)
	sender := meta.New(meta.Config{
		BaseURL:       cfg.Provider.BaseURL,
		PhoneNumberID: cfg.Provider.PhoneNumberID,
		Token:         cfg.Provider.Token,
		Timeout:       cfg.Provider.Timeout,
		MaxRetries:    cfg.Provider.MaxRetries,
		RetryDelay:    cfg.Provider.RetryDelay,
	}, log)

	machine := conversation.NewMachine(store, engine, resolver, sender, log)
	machine.StartJanitor(time.Hour)
	defer machine.StopJanitor()

	docs, err := docgen.NewFileGenerator(cfg.Documents.Dir, cfg.Documents.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("init document generator")
	}

	closer := closing.NewCloser(store, engine, log)
	closer.Docs = docs
	closer.Workers = cfg.Closing.Workers
	if cfg.Closing.Notify {
		closer.Notify = &closing.ChatNotifier{Sender: sender}
	}

	runner := queue.NewRunner(store, log)
	runner.PollInterval = cfg.Queue.PollInterval
	runner.Workers = cfg.Queue.Workers
	runner.MaxAttempts = cfg.Queue.MaxAttempts
	runner.BackoffBase = cfg.Queue.BackoffBase
	runner.Register(closing.JobCloseAccount, closer.HandleCloseAccount)
	runner.Register(closing.JobCloseAll, closer.HandleCloseAll)
	runner.Start()
	defer runner.Stop()

	handler := &api.Handler{
		Store:       store,
		Engine:      engine,
		Resolver:    resolver,
		Machine:     machine,
		Importer:    bulkimport.NewImporter(store, log),
		Queue:       runner,
		VerifyToken: cfg.Provider.VerifyToken,
		APIToken:    cfg.Server.APIToken,
		Log:         log,
	}
	router := api.NewRouter(handler, cfg.Documents.Dir)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
