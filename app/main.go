package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/api"
	"github.com/featherwatch/featherwatch/app/cfg"
	"github.com/featherwatch/featherwatch/app/collector"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/federated"
	"github.com/featherwatch/featherwatch/app/live"
	"github.com/featherwatch/featherwatch/app/mirror"
	"github.com/featherwatch/featherwatch/app/report"
	"github.com/featherwatch/featherwatch/app/sentiment"
	"github.com/featherwatch/featherwatch/app/tasks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration from environment variables and command-line flags
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	log.Printf("Starting featherwatch %s...", appCfg.Version)

	// Database connection and migrations
	log.Println("Opening database...")
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty=%v)", version, dirty)

	// Tracked accounts
	accountList, err := accounts.Load(appCfg.AccountsFile)
	if err != nil {
		log.Fatal("Failed to load accounts:", err)
	}
	log.Printf("Tracking %d accounts", len(accountList))

	// Repositories
	postRepo := database.NewPostRepository(db)
	scoreRepo := database.NewScoreRepository(db)

	// Collection sources
	httpClient := &http.Client{Timeout: 60 * time.Second}
	politeness := 1 * time.Second

	federatedAdapter := federated.NewAdapter(appCfg.FederatedBaseURL, httpClient, appCfg.UserAgent, politeness)

	var mirrorSource collector.Source
	if appCfg.MirrorBaseURL != "" {
		mirrorSource = mirror.NewAdapter(appCfg.MirrorBaseURL, httpClient, appCfg.UserAgent, politeness)
	}

	creds := live.Credentials{Username: appCfg.LiveUsername, Password: appCfg.LivePassword}
	browserFactory := func() (live.Browser, error) {
		return live.NewChromeBrowser(true, appCfg.UserAgent)
	}

	postCollector := collector.New(federatedAdapter, mirrorSource, browserFactory, creds, collector.Options{
		WindowDays:   appCfg.WindowDays,
		MaxItems:     appCfg.MaxItems,
		MinPosts:     appCfg.MinPosts,
		AccountDelay: appCfg.AccountDelay,
	})
	defer postCollector.Close()

	// Sentiment and reporting
	analyzer := sentiment.NewAnalyzer(appCfg.OilKeywords, appCfg.ElectricityKeywords)

	var mailer tasks.ReportMailer
	smtp := report.SMTPConfig{
		Host:      appCfg.SMTPHost,
		Port:      appCfg.SMTPPort,
		Username:  appCfg.SMTPUsername,
		Password:  appCfg.SMTPPassword,
		From:      appCfg.EmailFrom,
		Recipient: appCfg.EmailTo,
	}
	if smtp.Configured() {
		mailer = report.NewMailer(smtp)
		log.Printf("Email delivery enabled to %s", appCfg.EmailTo)
	} else {
		log.Println("Email delivery disabled (SMTP not configured)")
	}

	// Scheduler
	log.Printf("Starting scheduler (daily run at %s)...", appCfg.ReportTime)
	scheduler := tasks.NewScheduler(accountList, postCollector, analyzer, postRepo, scoreRepo, mailer)
	scheduler.Start()
	defer scheduler.Stop()

	if appCfg.RunNow {
		log.Println("Enqueueing immediate run (--run-now)")
		scheduler.EnqueueRun()
	}

	// HTTP server
	apiHandler := api.NewHandler(db, postRepo, scoreRepo, accountList, federatedAdapter, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		log.Printf("  Health check:  http://localhost:%s/health", appCfg.Port)
		log.Printf("  Statistics:    http://localhost:%s/stats", appCfg.Port)
		log.Printf("  Latest report: http://localhost:%s/report", appCfg.Port)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("featherwatch started successfully!")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	// Graceful shutdown
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	log.Println("featherwatch shutdown complete")
}
