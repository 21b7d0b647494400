// Washdeck - Laundromat Operator Console
//
// This is the main entry point for the washdeck console service. It keeps
// a live mirror of the laundromat fleet: the operator session, the device
// registry fed by snapshot loads and per-device push channels, and the
// command dispatcher for starting and stopping machines.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"washdeck/internal/channel"
	"washdeck/internal/command"
	"washdeck/internal/device"
	"washdeck/internal/fleet"
	"washdeck/internal/infrastructure/config"
	"washdeck/internal/infrastructure/database"
	"washdeck/internal/infrastructure/logging"
	"washdeck/internal/session"
	"washdeck/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting washdeck",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Local .env is a development convenience; absence is fine
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the local database for session persistence
	db, err := database.Open(database.Config{
		Path:        cfg.Session.DatabasePath,
		WALMode:     cfg.Session.WALMode,
		BusyTimeout: cfg.Session.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Session.DatabasePath)

	store, err := session.NewSQLiteStore(ctx, db)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	// Fleet API client and operator session
	client := fleet.NewClient(cfg.Fleet.BaseURL, cfg.GetFleetTimeout())
	sessions := session.NewCache(client, store)
	sessions.SetLogger(log)

	if err := sessions.Resume(ctx); err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	if _, ok := sessions.Token(); !ok {
		if err := sessions.Login(ctx, cfg.Session.Username, cfg.Session.Password); err != nil {
			return fmt.Errorf("logging in: %w", err)
		}
		log.Info("logged in", "username", cfg.Session.Username)
	}

	identity, err := sessions.Identity(ctx, false)
	if err != nil {
		return fmt.Errorf("resolving operator identity: %w", err)
	}
	log.Info("operator session ready",
		"uid", identity.UID,
		"name", identity.Name,
		"is_admin", identity.IsAdmin,
	)

	// Connect to InfluxDB (optional)
	recorder, err := telemetry.Connect(cfg.Telemetry)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		log.Info("telemetry disabled")
	case err != nil:
		return fmt.Errorf("connecting telemetry: %w", err)
	default:
		defer func() {
			log.Info("closing telemetry connection")
			recorder.Close()
		}()
		recorder.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	}

	// Device registry fed from fleet snapshots
	registry := device.NewRegistry(client)
	registry.SetLogger(log)
	if _, err := registry.LoadSnapshot(ctx); err != nil {
		return fmt.Errorf("loading device snapshot: %w", err)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	for _, dev := range registry.All() {
		timeLeft := int64(0)
		if dev.TimeLeft != nil {
			timeLeft = *dev.TimeLeft
		}
		recorder.RecordUsage(dev.ID, dev.Running(), timeLeft)
	}

	// Command dispatcher, gated on the operator session
	dispatcher := command.NewDispatcher(client, sessions)
	dispatcher.SetLogger(log)
	if recorder != nil {
		dispatcher.SetRecorder(recorder)
	}

	// Push channels fan deltas out to the registry, the dispatcher's
	// pending marks and telemetry
	channels := channel.NewManager(cfg.FleetWSURL(), cfg.Channels)
	channels.SetLogger(log)
	onDelta := func(delta device.Delta) {
		registry.ApplyDelta(delta)
		dispatcher.ObserveDelta(delta)

		if dev, err := registry.Get(delta.DeviceID); err == nil {
			timeLeft := int64(0)
			if dev.TimeLeft != nil {
				timeLeft = *dev.TimeLeft
			}
			recorder.RecordUsage(dev.ID, dev.Running(), timeLeft)
		}
	}

	channels.OpenAll(ctx, registry.IDs(), onDelta)
	defer func() {
		log.Info("closing push channels")
		channels.CloseAll()
	}()
	log.Info("push channels open", "count", len(channels.OpenIDs()))

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WASHDECK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WASHDECK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
