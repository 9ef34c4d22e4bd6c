package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"sensorbridge/internal/config"
	"sensorbridge/internal/db"
	"sensorbridge/internal/delijn"
	"sensorbridge/internal/dispatcher"
	"sensorbridge/internal/entity"
	"sensorbridge/internal/metrics"
	"sensorbridge/internal/mysensors"
	"sensorbridge/internal/platform"
	"sensorbridge/internal/publisher"

	_ "time/tzdata"
)

func main() {
	var cfg *config.Config

	app := &cli.App{
		Name:  "sensorbridge",
		Usage: "De Lijn departure sensors and MySensors binary sensors on a NATS state bus",
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			setupLogging(cfg)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "poll the configured sensors and serve gateway discovery",
				Action: func(c *cli.Context) error {
					return run(c.Context, cfg)
				},
			},
			{
				Name:  "validate",
				Usage: "check the platform configuration file and exit",
				Action: func(c *cli.Context) error {
					p, err := config.LoadPlatforms(cfg.ConfigPath)
					if err != nil {
						return err
					}
					stops := 0
					for _, s := range p.Sensor {
						stops += len(s.NextDeparture)
					}
					log.Info().
						Str("path", cfg.ConfigPath).
						Int("delijn_platforms", len(p.Sensor)).
						Int("stops", stops).
						Int("gateways", len(p.MySensors)).
						Msg("configuration is valid")
					return nil
				},
			},
			{
				Name:      "last-state",
				Usage:     "print the last recorded state of an entity",
				ArgsUsage: "<entity id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("exactly one entity id is required", 2)
					}
					sqlDB, err := openRecorderDB(c.Context, cfg)
					if err != nil {
						return err
					}
					if sqlDB == nil {
						return errors.New("no recorder database configured")
					}
					defer sqlDB.Close()
					s, err := db.LatestState(c.Context, sqlDB, c.Args().First())
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(s)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setupLogging(cfg *config.Config) {
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if cfg.Debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}

func run(parent context.Context, cfg *config.Config) error {
	platforms, err := config.LoadPlatforms(cfg.ConfigPath)
	if err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.ScanInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), cfg.StatePrefix)
	if err != nil {
		return fmt.Errorf("nats error: %w", err)
	}
	defer pub.Close()

	writers := []platform.StateWriter{pub}
	sqlDB, err := openRecorderDB(ctx, cfg)
	if err != nil {
		return err
	}
	if sqlDB != nil {
		defer sqlDB.Close()
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			return err
		}
		writers = append(writers, countWrites(db.NewRecorder(sqlDB), mcol))
		log.Info().Msg("recorder enabled")
	}

	poller := platform.NewPoller(cfg.ScanInterval)
	registry := platform.NewRegistry(poller, wrapPlatformMetrics(mcol), writers...)
	registry.SetLocation(cfg.Location)

	d := dispatcher.New()
	var gateways []*mysensors.Gateway
	for _, gc := range platforms.MySensors {
		gw := mysensors.NewGateway(gc.EntryID, d,
			mysensors.WithStateWriter(func(e entity.Entity) { registry.WriteState(ctx, e) }),
			mysensors.WithGatewayMetrics(wrapGatewayMetrics(mcol)),
		)
		mysensors.SetupBinarySensorEntry(gw, registry.Adder(ctx))
		tr, err := openGatewayTransport(pub, gc, gw, cfg.LogNATSSubjects)
		if err != nil {
			return fmt.Errorf("gateway %s: %w", gc.EntryID, err)
		}
		gw.OnUnload(func() {
			if err := tr.Close(); err != nil {
				log.Warn().Err(err).Str("gateway", gc.EntryID).Msg("unsubscribe failed")
			}
		})
		gateways = append(gateways, gw)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	for _, sc := range platforms.Sensor {
		delijn.SetupPlatform(sc, delijn.HTTPLines(httpClient), registry.Adder(ctx))
	}

	log.Info().
		Int("entities", len(registry.EntityIDs())).
		Int("gateways", len(gateways)).
		Dur("scan_interval", poller.Interval()).
		Msg("sensorbridge running")

	// Block until context cancelled
	<-ctx.Done()
	poller.Stop()
	for _, gw := range gateways {
		log.Info().Str("gateway", gw.EntryID()).Int("binary_sensors", len(gw.Devices("binary_sensor"))).Msg("unloading gateway")
		gw.Unload()
	}
	log.Info().Msg("shutdown complete")
	return nil
}

type gatewayTransport interface {
	Close() error
}

func openGatewayTransport(pub *publisher.NATSPublisher, gc config.MySensors, gw *mysensors.Gateway, logSubjects bool) (gatewayTransport, error) {
	if gc.Serial() {
		return mysensors.OpenSerial(gc.Device, gc.BaudRate, gw)
	}
	return mysensors.Subscribe(pub.Conn(), gc.SubjectPrefix, gw, logSubjects)
}

func openRecorderDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	dsn := cfg.DatabaseURL
	if cfg.RecorderDB != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.RecorderDB); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return sqlDB, nil
}
