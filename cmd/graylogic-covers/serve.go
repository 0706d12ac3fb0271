package main

import (
	"context"
	"fmt"
	"time"

	_ "github.com/nerrad567/gray-logic-shutters/migrations"

	"github.com/nerrad567/gray-logic-shutters/internal/api"
	"github.com/nerrad567/gray-logic-shutters/internal/audit"
	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/entries"
	"github.com/nerrad567/gray-logic-shutters/internal/history"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shutters/internal/statebus"
)

// pruneInterval is how often old decision history is deleted.
const pruneInterval = 6 * time.Hour

// run is the serve logic, separated from the command for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Shutters",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Load entries before touching any infrastructure so a broken file
	// fails fast.
	list, err := entries.LoadFile(cfg.Covers.EntriesFile)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	log.Info("entries loaded", "path", cfg.Covers.EntriesFile, "entries", len(list))

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// State bus: entity cache, commands and snapshot publishing.
	bus, err := statebus.New(statebus.Options{
		Broker:     mqttClient,
		QoS:        byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		AckTimeout: cfg.AckTimeout(),
		Logger:     log.Component("statebus"),
	})
	if err != nil {
		return fmt.Errorf("creating state bus: %w", err)
	}
	if startErr := bus.Start(ctx); startErr != nil {
		return fmt.Errorf("starting state bus: %w", startErr)
	}
	defer func() {
		log.Info("stopping state bus")
		bus.Stop()
	}()

	collectors := metrics.New(cfg.Metrics)

	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, log.Component("history"))
	if startErr := recorder.Start(ctx); startErr != nil {
		return fmt.Errorf("starting history recorder: %w", startErr)
	}
	defer recorder.Stop()

	registry := cover.NewRegistry()
	broadcaster := cover.NewBroadcaster()

	// Engines, API and watcher stop before the listeners they feed.
	deps := cover.Deps{
		Store:              bus,
		Events:             bus,
		Sink:               bus,
		Publisher:          broadcaster,
		Location:           cfg.Location(),
		Logger:             log.Component("cover"),
		CalibrationPoll:    cfg.CalibrationPoll(),
		CalibrationTimeout: cfg.CalibrationTimeout(),
		Observer:           collectors,
	}
	manager := entries.NewManager(registry, entries.NewSQLiteOptionsRepository(db.DB), deps, log.Component("entries"))

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Metrics:      cfg.Metrics,
		Logger:       log,
		Registry:     registry,
		Entries:      manager,
		History:      historyRepo,
		Audit:        audit.NewSQLiteRepository(db.DB),
		Collectors:   collectors,
		HistoryLimit: cfg.Covers.HistoryLimit,
		Checks:       healthChecks(db, mqttClient, influxClient),
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	subscribeListeners(broadcaster, bus, server.Hub(), recorder, collectors, influxClient)

	if applyErr := manager.Apply(ctx, list); applyErr != nil {
		// Healthy entries keep running; the broken ones are reported.
		log.Error("some entries failed to start", "error", applyErr)
	}
	defer func() {
		log.Info("stopping cover engines")
		manager.Close()
	}()
	log.Info("cover engines started", "covers", len(registry.Snapshots()))

	if cfg.Covers.Watch {
		reload := func(updated []entries.Entry) {
			if applyErr := manager.Apply(ctx, updated); applyErr != nil {
				log.Error("reloading entries", "error", applyErr)
				return
			}
			log.Info("entries reloaded", "entries", len(updated))
		}
		if watchErr := entries.Watch(ctx, cfg.Covers.EntriesFile, cfg.WatchDebounce(), reload, log.Component("entries")); watchErr != nil {
			return fmt.Errorf("watching entries: %w", watchErr)
		}
	}

	if retention := cfg.HistoryRetention(); retention > 0 {
		go pruneHistory(ctx, historyRepo, retention, log)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "api", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API server, cover engines, history recorder, state bus,
	// InfluxDB (if enabled), MQTT, database.

	return nil
}

// subscribeListeners attaches every snapshot consumer to the broadcaster.
// Each listener queues or drops and never blocks the publishing engine.
func subscribeListeners(b *cover.Broadcaster, bus *statebus.Bus, hub *api.Hub, recorder *history.Recorder, collectors *metrics.Metrics, influxClient *influxdb.Client) {
	b.Subscribe(bus.PublishSnapshot)
	b.Subscribe(hub.Observe)
	b.Subscribe(recorder.Observe)
	b.Subscribe(collectors.Observe)
	if influxClient != nil {
		b.Subscribe(func(s cover.Snapshot) {
			influxClient.WriteCoverDecision(influxdb.CoverDecision{
				EntryID:      s.EntryID,
				Cover:        s.Cover,
				Reason:       string(s.Reason),
				Target:       s.Target,
				Position:     s.Position,
				ManualActive: s.ManualActive,
				Time:         s.UpdatedAt,
			})
		})
	}
}

// healthChecks returns the infrastructure checks reported by /health.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	return checks
}

// pruneHistory deletes decisions older than retention until ctx ends.
func pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		removed, err := repo.Prune(ctx, retention)
		switch {
		case err != nil:
			log.Warn("pruning decision history", "error", err)
		case removed > 0:
			log.Info("pruned decision history", "removed", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
