// Shell Updater - firmware and database updater for the Keycard Shell.
//
// The daemon watches the USB bus for a shell, compares its firmware and
// database versions with the published releases, and writes new images on
// request. Requests arrive over the local HTTP API or MQTT; progress is
// streamed over WebSocket and MQTT.
//
// Usage:
//
//	shellupdater                  run the daemon
//	shellupdater token [flags]    print a signed API token
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/shell-updater/internal/api"
	"github.com/nerrad567/shell-updater/internal/bridges/shellhid"
	"github.com/nerrad567/shell-updater/internal/control"
	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/infrastructure/database"
	"github.com/nerrad567/shell-updater/internal/infrastructure/influxdb"
	"github.com/nerrad567/shell-updater/internal/infrastructure/logging"
	"github.com/nerrad567/shell-updater/internal/infrastructure/mqtt"
	"github.com/nerrad567/shell-updater/internal/notify"
	"github.com/nerrad567/shell-updater/internal/release"
	"github.com/nerrad567/shell-updater/internal/shell"
	"github.com/nerrad567/shell-updater/internal/update"
	"github.com/nerrad567/shell-updater/migrations"
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

	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = runToken(os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting shell updater",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
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
	log.Info("database connected", "path", db.Path())

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	registry := release.NewRegistry(cfg.Releases)
	registry.SetLogger(log.Component("release"))

	transport := shellhid.New(cfg.Device)
	transport.SetLogger(log.Component("hid"))

	connLog := log.Component("shell")
	connector := shell.NewConnector(transport, shell.ConnectorOptions{
		RetryDelay:  cfg.Device.ConnectRetryDelay,
		MaxAttempts: cfg.Device.ConnectMaxAttempts,
		Logger:      connLog,
		OnRetry: func(err error, attempt int) {
			connLog.Debug("device open failed, retrying", "attempt", attempt, "error", err)
		},
	})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := update.NewMetrics(promRegistry, connector.Stats)

	// Sinks are added before the service emits its first event.
	events := notify.NewFanout()
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		events.Add(hub)
		promRegistry.MustRegister(api.NewHubCollector(hub))
	}
	if mqttClient != nil {
		events.Add(notify.NewMQTTSink(mqttClient, mqtt.Topics{}.Event, byte(cfg.MQTT.QoS), log.Component("mqtt")))
	}

	opts := update.ServiceOptions{
		History: update.NewSQLiteHistoryRepository(db.DB),
		Metrics: metrics,
		Logger:  log.Component("update"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	svc := update.NewService(registry, connector, events, opts)

	if startErr := svc.Start(ctx); startErr != nil {
		log.Warn("release metadata unavailable, online updates disabled", "error", startErr)
	} else {
		log.Info("release metadata loaded")
	}

	watcher := shell.NewWatcher(transport, shell.WatcherOptions{
		PollInterval: cfg.Device.PollInterval,
		Logger:       log.Component("watcher"),
	})
	defer func() {
		log.Info("stopping device watcher")
		if stopErr := watcher.Stop(); stopErr != nil {
			log.Error("device watcher stopped with error", "error", stopErr)
		}
	}()

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- svc.Run(ctx, watcher.Events())
	}()

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{"database": db}
		if mqttClient != nil {
			checks["mqtt"] = mqttClient
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Updater:  svc,
			Hub:      hub,
			Gatherer: promRegistry,
			Checks:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if mqttClient != nil {
		ctrl := control.New(mqttClient, svc, events)
		ctrl.SetLogger(log.Component("control"))
		if startErr := ctrl.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT control: %w", startErr)
		}
		defer ctrl.Stop()
		log.Info("MQTT control started")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if runErr := <-serviceDone; runErr != nil {
		log.Error("update service stopped with error", "error", runErr)
	}

	log.Info("shell updater stopped")
	return nil
}

// connectMQTT connects to the broker when MQTT is enabled. A nil client
// means MQTT is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB connects to InfluxDB when enabled. A nil client means
// telemetry is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// runToken implements the token subcommand: it loads the configuration and
// prints a signed API token on out.
//
// Flags:
//   - -subject: Token subject, logged with each API request (default "cli")
//   - -ttl: Token lifetime (default security.jwt.token_ttl); 0 never expires
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "cli", "token subject")
	ttl := fs.Duration("ttl", -1, "token lifetime (default security.jwt.token_ttl, 0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime < 0 {
		lifetime = cfg.GetTokenTTL()
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, *subject, lifetime)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHELLUPDATER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHELLUPDATER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

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
