// melbridge - MELCloud Heat Pump Bridge
//
// This is the main entry point for the melbridge application. It links
// Mitsubishi Electric heat pumps behind the MELCloud vendor cloud to
// local infrastructure:
//   - MQTT topics for state publication and command intake
//   - A REST/WebSocket API for dashboards and tooling
//   - InfluxDB for climate and energy metrics
//   - SQLite for durable energy accounting
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/andrew-blake/melcloudhome-sub002/migrations"

	"github.com/andrew-blake/melcloudhome-sub002/internal/api"
	"github.com/andrew-blake/melcloudhome-sub002/internal/bridge"
	"github.com/andrew-blake/melcloudhome-sub002/internal/control"
	"github.com/andrew-blake/melcloudhome-sub002/internal/energy"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/config"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/database"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/influxdb"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/logging"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/mqtt"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
	"github.com/andrew-blake/melcloudhome-sub002/internal/poller"
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
	log.Info("starting melbridge",
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

	// MELCloud session and client
	session := melcloud.NewSessionManager(melcloud.SessionConfig{
		BaseURL:    cfg.MELCloud.BaseURL,
		AppVersion: cfg.MELCloud.AppVersion,
		Language:   cfg.MELCloud.Language,
		Timeout:    cfg.GetRequestTimeout(),
	}, melcloud.Credentials{
		Email:    cfg.MELCloud.Email,
		Password: cfg.MELCloud.Password,
	})
	session.SetLogger(log)

	if loginErr := session.Login(ctx); loginErr != nil {
		return fmt.Errorf("MELCloud login: %w", loginErr)
	}
	log.Info("MELCloud session established")

	client := melcloud.NewClient(melcloud.ClientConfig{
		BaseURL: cfg.MELCloud.BaseURL,
		Timeout: cfg.GetRequestTimeout(),
	}, session)
	client.SetLogger(log)

	// Energy accumulator backed by SQLite
	accumulator := energy.NewAccumulator(energy.Config{
		Retention: cfg.GetEnergyRetention(),
	}, energy.NewSQLiteStore(db))
	accumulator.SetLogger(log)
	if loadErr := accumulator.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading energy state: %w", loadErr)
	}
	log.Info("energy accumulator loaded", "devices", len(accumulator.Report()))

	// Sync loop polling MELCloud state and telemetry
	energySink := &energyIngest{acc: accumulator}
	syncLoop := poller.NewSyncLoop(poller.Config{
		Interval:        cfg.GetPollInterval(),
		SubPollInterval: cfg.GetSubPollInterval(),
		EnergyWindow:    cfg.GetEnergyRetention(),
	}, client, session, energySink)
	syncLoop.SetLogger(log)

	// Control dispatcher feeding commands to MELCloud
	dispatcher := control.NewDispatcher(control.Config{
		DebounceWindow: cfg.GetDebounceWindow(),
	}, client, session, syncLoop)
	dispatcher.SetLogger(log)
	dispatcher.OnRefresh(syncLoop.RequestRefresh)
	defer dispatcher.Close()

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker and start the bridge (optional)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mqttBridge, bridgeErr := bridge.New(bridge.Options{
			MQTT:    mqttClient,
			Command: dispatcher,
			Energy:  accumulator,
			Metrics: metricsWriter(influxClient),
			Logger:  log,
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := mqttBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		syncLoop.OnSnapshot(mqttBridge.HandleSnapshot)
		syncLoop.OnAmbient(mqttBridge.HandleAmbient)
		energySink.buckets = mqttBridge.HandleEnergyBuckets
		log.Info("MQTT bridge started")
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Snapshots: syncLoop,
		Commands:  dispatcher,
		Energy:    accumulator,
		Schemas:   client,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Mirror every fresh snapshot and energy report onto the WebSocket hub
	syncLoop.OnSnapshot(func(snap poller.Snapshot) {
		apiServer.Hub().Broadcast(api.ChannelSnapshot, snap)
		apiServer.Hub().Broadcast(api.ChannelEnergy, accumulator.Report())
	})

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, starting sync loop")

	// Run the sync loop until the shutdown signal arrives
	if runErr := syncLoop.Run(ctx); runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("sync loop: %w", runErr)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Control dispatcher
	// 5. Database

	log.Info("melbridge stopped")
	return nil
}

// energyIngest feeds hourly energy buckets into the accumulator and,
// when the MQTT bridge is running, mirrors them out for metrics.
type energyIngest struct {
	acc     *energy.Accumulator
	buckets func(deviceID string, buckets []melcloud.HourBucket)
}

func (e *energyIngest) Ingest(ctx context.Context, device melcloud.Device, buckets []melcloud.HourBucket) error {
	if err := e.acc.Ingest(ctx, device, buckets); err != nil {
		return err
	}
	if e.buckets != nil {
		e.buckets(device.ID, buckets)
	}
	return nil
}

// metricsWriter adapts an optional InfluxDB client to the bridge's
// MetricsWriter interface without passing a typed nil through.
func metricsWriter(client *influxdb.Client) bridge.MetricsWriter {
	if client == nil {
		return nil
	}
	return client
}

// getConfigPath returns the configuration file path.
// Uses MELBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MELBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB may be nil when disabled.
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
