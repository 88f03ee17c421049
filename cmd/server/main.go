// Package main is the entry point for the LacyLights motion server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/bbernstein/lacylights-motion/internal/api"
	"github.com/bbernstein/lacylights-motion/internal/config"
	"github.com/bbernstein/lacylights-motion/internal/database"
	"github.com/bbernstein/lacylights-motion/internal/database/repositories"
	"github.com/bbernstein/lacylights-motion/internal/services/dmx"
	"github.com/bbernstein/lacylights-motion/internal/services/patch"
	"github.com/bbernstein/lacylights-motion/internal/services/pubsub"
	"github.com/bbernstein/lacylights-motion/internal/services/simulation"
	"github.com/bbernstein/lacylights-motion/internal/services/stream"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Print startup banner
	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	// Auto-migrate database schema
	log.Println("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	ps := pubsub.New()

	// Create the simulation engine
	engine := simulation.NewEngine(ps, simulation.Config{
		TickRateHz:   cfg.TickRateHz,
		StreamRateHz: cfg.StreamRateHz,
	})

	// Import profiles and start patched fixtures
	services, err := loadFixtures(context.Background(), db, cfg, engine)
	if err != nil {
		log.Fatalf("Failed to load fixtures: %v", err)
	}

	engine.Start()

	// Create and initialize DMX input
	dmxService := dmx.NewService(dmx.Config{
		Enabled:       cfg.ArtNetEnabled,
		ListenAddr:    cfg.ArtNetListenAddr,
		Port:          cfg.ArtNetPort,
		UniverseCount: cfg.DMXUniverseCount,
	})
	dmxService.SetHandler(engine.PushUniverse)
	if err := dmxService.Initialize(); err != nil {
		log.Printf("Warning: DMX input initialization failed: %v", err)
		// Continue anyway - values can still be injected over HTTP
	}

	router := api.NewRouter(api.Deps{
		Engine:   engine,
		Input:    dmxService,
		Profiles: services.profileRepo,
		Importer: services.importer,
		Loader:   services.loader,
		Stream:   stream.NewHandler(ps, engine),
		Clients:  ps,
		Version:  Version,
	}, api.Options{
		CORSOrigin: cfg.CORSOrigin,
		Debug:      cfg.IsDevelopment(),
	})

	// Create HTTP server. No write timeout: websocket streams are long-lived.
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		log.Printf("Fixture stream: ws://localhost:%s/ws\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cleanup services in reverse order
	dmxService.Stop()
	engine.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

type fixtureServices struct {
	profileRepo *repositories.ProfileRepository
	importer    *patch.Importer
	loader      *patch.Loader
}

// loadFixtures imports the profile directory and adds every stored patch to
// the engine.
func loadFixtures(ctx context.Context, db *gorm.DB, cfg *config.Config, engine patch.Engine) (*fixtureServices, error) {
	profileRepo := repositories.NewProfileRepository(db)
	patchRepo := repositories.NewPatchRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	services := &fixtureServices{
		profileRepo: profileRepo,
		importer:    patch.NewImporter(profileRepo, settingRepo),
		loader:      patch.NewLoader(profileRepo, patchRepo, cfg.SkipThreshold),
	}

	if cfg.ProfilePath != "" {
		if _, err := services.importer.ImportDir(ctx, cfg.ProfilePath); err != nil {
			return nil, err
		}
	}
	if _, err := services.loader.LoadAll(ctx, engine); err != nil {
		return nil, err
	}
	return services, nil
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  LacyLights Motion Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Art-Net:     %v\n", cfg.ArtNetEnabled)
	fmt.Printf("  Tick rate:   %d Hz\n", cfg.TickRateHz)
	fmt.Printf("  Profiles:    %s\n", cfg.ProfilePath)
	fmt.Println("============================================")
}
