// Lantaarn - Street Lamp Coordination Server
//
// This is the main entry point for the Lantaarn server. Lantaarn
// coordinates networked street lamps and presence sensors:
//   - Graph-based street activation with configurable spillover
//   - Persistent device sessions over WebSocket
//   - Automatic deactivation after a configured duration
//   - Live topology broadcasts to UI observers
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/svenyesyes/smart-lantaarn-server/migrations"

	"github.com/svenyesyes/smart-lantaarn-server/internal/api"
	"github.com/svenyesyes/smart-lantaarn-server/internal/autooff"
	"github.com/svenyesyes/smart-lantaarn-server/internal/discovery"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/database"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/influxdb"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/mqtt"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/session"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lantaarn",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load topology into the graph engine
	store := topology.NewSQLiteStore(db.DB)
	engine := lamp.NewEngine(log)

	lamps, sensors, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}
	engine.Load(lamps, sensors)

	// Auto-off scheduler: registered before any sessions attach so every
	// state change arms or cancels its deadline and is persisted.
	scheduler := autooff.New(engine, store, cfg.AutoOff, log)
	engine.OnStateUpdated(scheduler.HandleStateUpdate)
	defer scheduler.Stop()

	if resumeErr := scheduler.Resume(ctx); resumeErr != nil {
		return fmt.Errorf("resuming auto-off deadlines: %w", resumeErr)
	}
	if scheduler.Enabled() {
		log.Info("auto-off scheduler active", "duration_seconds", cfg.AutoOff.Duration)
	} else {
		log.Info("auto-off scheduler disabled")
	}

	// Device session manager
	sessions := session.NewManager(engine, store, cfg.WebSocket, session.Defaults{
		SpilloverDepth: cfg.Engine.SpilloverDepth,
		PulseColor:     cfg.Engine.PulseColor,
	}, log)
	defer sessions.Close()

	// Push every state change to the owning device session, if connected.
	engine.OnStateUpdated(sessions.PushState)

	// Connect to MQTT broker (optional state relay)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		wireMQTTRelay(engine, mqttClient, log)
	} else {
		log.Info("MQTT relay disabled")
	}

	// Connect to InfluxDB (optional telemetry)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		engine.OnStateUpdated(influxClient.WriteLampState)
		engine.OnStreetActivated(func(streetID string, affected []string) {
			influxClient.WriteStreetActivation(streetID, len(affected))
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start HTTP API server (REST + observer and device WebSockets)
	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Engine:    cfg.Engine,
		AutoOff:   cfg.AutoOff,
		Logger:    log,
		Lamps:     engine,
		Store:     store,
		Sessions:  sessions,
		Scheduler: scheduler,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Advertise via mDNS so devices can find us without configuration
	if cfg.Discovery.Enabled {
		advertiser := discovery.NewAdvertiser(discovery.Config{
			Port:       cfg.API.Port,
			Name:       cfg.Discovery.Name,
			DevicePath: cfg.WebSocket.DevicePath,
		})
		if startErr := advertiser.Start(); startErr != nil {
			log.Warn("mDNS advertisement failed to start", "error", startErr)
		} else {
			defer advertiser.Stop()
			log.Info("mDNS advertisement started", "service", discovery.ServiceType)
		}
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: mDNS, API server,
	// InfluxDB, MQTT, sessions, scheduler, database.

	log.Info("Lantaarn stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LANTAARN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LANTAARN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// wireMQTTRelay attaches engine hooks that publish lamp state and
// street activations to the broker. Publishes are best-effort; a
// disconnected broker must never block a state change.
func wireMQTTRelay(engine *lamp.Engine, client *mqtt.Client, log *logging.Logger) {
	topics := mqtt.Topics{}

	engine.OnStateUpdated(func(lampID string, state lamp.LampState) {
		payload, err := json.Marshal(state)
		if err != nil {
			return
		}
		if pubErr := client.PublishRetained(topics.LampState(lampID), payload); pubErr != nil {
			log.Debug("MQTT state publish failed", "lamp_id", lampID, "error", pubErr)
		}
	})

	engine.OnStreetActivated(func(streetID string, affected []string) {
		payload, err := json.Marshal(map[string]any{
			"street":            streetID,
			"affected_lamp_ids": affected,
		})
		if err != nil {
			return
		}
		if pubErr := client.PublishEvent(topics.StreetActivated(streetID), payload); pubErr != nil {
			log.Debug("MQTT street publish failed", "street", streetID, "error", pubErr)
		}
	})
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
