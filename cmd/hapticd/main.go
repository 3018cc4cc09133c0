// haptic-core daemon.
//
// hapticd is the host-side engine for a fleet of haptic devices:
// it compiles emotion samples into vibration patterns, supervises
// per-device connections, and exposes the management REST/WebSocket
// API. Device status is optionally relayed to an MQTT broker and
// recorded in InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/FujiiNoritsugu/haptic-core/migrations"

	"github.com/FujiiNoritsugu/haptic-core/internal/api"
	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/fleet"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/config"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/database"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/influxdb"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/logging"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/mqtt"
	"github.com/FujiiNoritsugu/haptic-core/internal/supervisor"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting haptic-core",
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

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.Count())

	// Fleet coordinator owns per-device connection supervisors
	coordinator := fleet.New(deviceRegistry, supervisor.Config{
		InitialDelay:      cfg.Fleet.Reconnect.GetInitialDelay(),
		MaxDelay:          cfg.Fleet.Reconnect.GetMaxDelay(),
		MaxAttempts:       cfg.Fleet.Reconnect.MaxAttempts,
		HeartbeatInterval: cfg.Fleet.GetHeartbeatInterval(),
		RequestTimeout:    cfg.Fleet.GetRequestTimeout(),
	})
	coordinator.SetLogger(log)
	defer func() {
		log.Info("stopping fleet coordinator")
		coordinator.Close()
	}()
	log.Info("fleet coordinator initialised",
		"heartbeat_interval", cfg.Fleet.GetHeartbeatInterval(),
		"max_reconnect_attempts", cfg.Fleet.Reconnect.MaxAttempts,
	)

	// Connect to MQTT broker (optional status relay)
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

		startMQTTRelay(coordinator, mqttClient, log)
	} else {
		log.Info("MQTT disabled")
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

		startTelemetry(coordinator, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the management API
	apiServer, err := api.New(api.Deps{
		Config:          cfg.API,
		WS:              cfg.WebSocket,
		Logger:          log,
		Registry:        deviceRegistry,
		Fleet:           coordinator,
		MaxPatternSteps: cfg.Fleet.MaxPatternSteps,
		Version:         version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, fleet coordinator, database.

	log.Info("haptic-core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HAPTIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAPTIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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

// statusPayload is the retained per-device status message published to
// haptic/status/{device_id}.
type statusPayload struct {
	DeviceID  string `json:"device_id"`
	ConnState string `json:"conn_state"`
	Status    any    `json:"status"`
	LastSeen  string `json:"last_seen,omitempty"`
	Timestamp string `json:"timestamp"`
}

// startMQTTRelay publishes every fleet status snapshot as a retained
// message, so late subscribers immediately see the current fleet state.
func startMQTTRelay(coordinator *fleet.Coordinator, client *mqtt.Client, log *logging.Logger) {
	topics := mqtt.Topics{}

	coordinator.Subscribe(func(snap supervisor.Snapshot) {
		payload := statusPayload{
			DeviceID:  snap.DeviceID,
			ConnState: string(snap.State),
			Status:    snap.Status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if !snap.LastSeen.IsZero() {
			payload.LastSeen = snap.LastSeen.UTC().Format(time.RFC3339)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Error("marshalling status payload", "error", err)
			return
		}
		if err := client.PublishRetained(topics.DeviceStatus(snap.DeviceID), data); err != nil {
			log.Warn("status relay publish failed",
				"device_id", snap.DeviceID,
				"error", err,
			)
		}
	})
}

// startTelemetry records fleet status snapshots in InfluxDB: playback
// activity per device, connection state transitions, and successful
// reconnections.
func startTelemetry(coordinator *fleet.Coordinator, client *influxdb.Client) {
	var mu sync.Mutex
	lastState := make(map[string]supervisor.ConnState)
	everConnected := make(map[string]bool)

	coordinator.Subscribe(func(snap supervisor.Snapshot) {
		playing := 0.0
		if snap.Status.IsPlaying {
			playing = 1.0
		}
		client.WritePlaybackMetric(snap.DeviceID, "is_playing", playing)

		mu.Lock()
		prev, seen := lastState[snap.DeviceID]
		lastState[snap.DeviceID] = snap.State
		wasConnected := everConnected[snap.DeviceID]
		if snap.State == supervisor.StateConnected {
			everConnected[snap.DeviceID] = true
		}
		mu.Unlock()

		if !seen || prev == snap.State {
			return
		}
		client.WriteStateTransition(snap.DeviceID, string(prev), string(snap.State))

		// Entering Connected after an earlier session is a recovery
		// from a dropped link; the first connect is not.
		if snap.State == supervisor.StateConnected && wasConnected {
			client.WriteReconnect(snap.DeviceID, snap.Attempts)
		}
	})
}
