package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/Nussi649/ShellyManager/migrations"

	"github.com/Nussi649/ShellyManager/internal/audit"
	"github.com/Nussi649/ShellyManager/internal/bridges"
	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/database"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/influxdb"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/kafka"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/logging"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/mqtt"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/tsdb"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// appOptions selects which optional connections a command needs.
type appOptions struct {
	// mirrors connects InfluxDB, VictoriaMetrics and Kafka when enabled.
	mirrors bool
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *database.DB
	repo    *meter.SQLiteRepository
	history *audit.SQLiteRepository

	registry     *meter.Registry
	orchestrator *fetch.Orchestrator
	mqtt         *mqtt.Client

	// closers run in reverse order on Close.
	closers []func()
}

// newApp loads the configuration and wires storage, broker, registry and
// orchestrator.
//
// Parameters:
//   - ctx: Context for connection setup
//   - configPath: Path to config.yaml
//   - opts: Optional connections to establish
//
// Returns:
//   - *app: Wired application; call Close when done
//   - error: If any required component fails to start
func newApp(ctx context.Context, configPath string, opts appOptions) (_ *app, err error) {
	a, err := newStorageApp(ctx, configPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	cfg := a.cfg

	if cfg.MQTT.Enabled {
		if err := a.connectMQTT(); err != nil {
			return nil, err
		}
	} else {
		a.log.Info("MQTT disabled")
	}

	factoryOpts := bridges.FactoryOptions{Config: cfg, Logger: a.log.ForComponent("bridges")}
	if a.mqtt != nil {
		factoryOpts.MQTT = a.mqtt
	}
	a.registry = meter.NewRegistry(bridges.NewAdapterFactory(factoryOpts))
	a.registry.SetLogger(a.log.ForComponent("registry"))
	a.closers = append(a.closers, a.registry.Close)

	if err := a.registry.Refresh(ctx, a.repo); err != nil {
		return nil, fmt.Errorf("loading meter registry: %w", err)
	}
	a.log.Info("meter registry initialised", "meters", a.registry.Len())

	var publishers []fetch.Publisher
	if opts.mirrors {
		publishers, err = a.connectMirrors(ctx)
		if err != nil {
			return nil, err
		}
	}

	a.orchestrator = fetch.NewOrchestrator(fetch.Options{
		Sink:           a.repo,
		Location:       cfg.Location(),
		DeviceTimeout:  cfg.GetDeviceTimeout(),
		MirrorTimeout:  cfg.GetMirrorTimeout(),
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		Publishers:     publishers,
		Logger:         a.log,
	})
	return a, nil
}

// newStorageApp loads the configuration and opens the migrated, seeded
// database. Only repo and history are usable on the result.
func newStorageApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &app{cfg: cfg, log: logging.New(cfg.Logging, version)}
	a.log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	if err := a.openDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() {
		a.log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			a.log.Error("error closing database", "error", closeErr)
		}
	})
	a.log.Info("database connected", "path", a.cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	a.repo = meter.NewSQLiteRepository(db.DB)
	a.history = audit.NewSQLiteRepository(db.DB)
	return a.seedMeters(ctx)
}

// seedMeters upserts the meters listed in the config file by name.
func (a *app) seedMeters(ctx context.Context) error {
	for _, mc := range a.cfg.Meters {
		m, err := a.repo.UpsertMeter(ctx, mc.Name, mc.Address, mc.IsActive())
		if err != nil {
			return fmt.Errorf("seeding meter %q: %w", mc.Name, err)
		}
		a.log.Debug("meter seeded", "meter", m.Name, "address", m.Address, "active", m.Active)
	}
	return nil
}

func (a *app) connectMQTT() error {
	client, err := mqtt.Connect(a.cfg.MQTT, a.log.ForComponent("mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}

	a.mqtt = client
	a.closers = append(a.closers, func() {
		a.log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			a.log.Error("error closing MQTT", "error", closeErr)
		}
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
	return nil
}

// connectMirrors connects every enabled reading mirror.
func (a *app) connectMirrors(ctx context.Context) ([]fetch.Publisher, error) {
	var pubs []fetch.Publisher

	influxClient, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		a.log.Info("InfluxDB disabled")
	case err != nil:
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		a.closers = append(a.closers, func() {
			a.log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		pubs = append(pubs, fetch.NewPointPublisher("influxdb", influxClient))
		a.log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
	}

	tsdbClient, err := tsdb.Connect(ctx, a.cfg.TSDB)
	switch {
	case errors.Is(err, tsdb.ErrDisabled):
		a.log.Info("TSDB disabled")
	case err != nil:
		return nil, fmt.Errorf("connecting to TSDB: %w", err)
	default:
		a.closers = append(a.closers, func() {
			a.log.Info("closing TSDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				a.log.Error("error closing TSDB", "error", closeErr)
			}
		})
		pubs = append(pubs, fetch.NewPointPublisher("tsdb", tsdbClient))
		a.log.Info("TSDB connected", "url", a.cfg.TSDB.URL)
	}

	producer, err := kafka.Connect(a.cfg.Kafka)
	switch {
	case errors.Is(err, kafka.ErrDisabled):
		a.log.Info("Kafka disabled")
	case err != nil:
		return nil, fmt.Errorf("connecting to Kafka: %w", err)
	default:
		a.closers = append(a.closers, func() {
			a.log.Info("closing Kafka producer")
			if closeErr := producer.Close(); closeErr != nil {
				a.log.Error("error closing Kafka producer", "error", closeErr)
			}
		})
		pubs = append(pubs, fetch.NewKafkaPublisher(producer))
		a.log.Info("Kafka producer ready", "brokers", a.cfg.Kafka.Brokers, "topic", producer.Topic())
	}

	if a.mqtt != nil && a.cfg.MQTT.PublishReadings {
		pubs = append(pubs, fetch.NewMQTTPublisher(a.mqtt))
	}
	return pubs, nil
}

// healthCheck verifies the connections every command depends on.
func (a *app) healthCheck(ctx context.Context) error {
	if err := a.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.mqtt != nil {
		if err := a.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

// runCycle runs one fetch cycle over the registry's current meters and
// records it in the cycle history.
func (a *app) runCycle(ctx context.Context) fetch.CycleResult {
	res := a.orchestrator.RunCycle(ctx, a.registry.All())
	if err := a.history.RecordCycle(ctx, res); err != nil {
		a.log.Warn("recording cycle history failed", "cycle_id", res.ID, "error", err)
	}
	return res
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
