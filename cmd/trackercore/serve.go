package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tracker-core/internal/api"
	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tracker-core/internal/notify"
)

func newServeCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the core until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := env()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

// serve wires the core to its external collaborators and blocks until ctx
// is cancelled. Deferred closes run in reverse order of opening.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting Tracker Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	c, err := openCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	inserted, err := c.settings.SyncAvailableConfig(ctx)
	if err != nil {
		return fmt.Errorf("syncing site config: %w", err)
	}
	log.Info("site config synced", "inserted", inserted)

	if cfg.Metrics.Enabled {
		metrics.Init(c.db.DB, log)
	}

	sinks := []notify.Sink{}

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
		mqttClient.SetLogger(log.WithComponent("mqtt"))
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

		topics := mqttClient.Topics()
		if err := mqttClient.Subscribe(topics.AllDeviceFirmwareAcks(), mqttClient.QoS(), c.firmware.AckHandler(topics)); err != nil {
			return fmt.Errorf("subscribing to firmware acks: %w", err)
		}
		sinks = append(sinks, notify.NewMQTTSink(mqttClient))
	} else {
		log.Info("MQTT disabled")
	}

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, notify.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	if len(sinks) == 0 {
		sinks = append(sinks, notify.NewLogSink(log.WithComponent("notify")))
	}

	if err := healthCheck(ctx, c.db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Metrics.Enabled {
		checks := []api.Check{{Name: "database", Checker: c.db}}
		if mqttClient != nil {
			checks = append(checks, api.Check{Name: "mqtt", Checker: mqttClient})
		}
		if influxClient != nil {
			checks = append(checks, api.Check{Name: "influxdb", Checker: influxClient})
		}
		server, err := api.New(api.Deps{
			Listen:     cfg.Metrics.Listen,
			Logger:     log.WithComponent("api"),
			Version:    version,
			DB:         c.db,
			Checks:     checks,
			Devices:    c.devices,
			Firmware:   c.firmware,
			Reconciler: c.reconciler,
			Outbox:     c.outbox,
		})
		if err != nil {
			return fmt.Errorf("creating ops server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting ops server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing ops server", "error", closeErr)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	dispatcher := notify.NewDispatcher(c.outbox, sinks...)
	dispatcher.SetLogger(log.WithComponent("notify"))
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	if interval := cfg.ReconcileInterval(); interval > 0 {
		g.Go(func() error {
			c.reconciler.Loop(gctx, interval)
			return nil
		})
	} else {
		log.Info("reconciliation loop disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Tracker Core stopped")
	return nil
}

// healthCheck verifies every enabled connection. Disabled clients are nil.
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
