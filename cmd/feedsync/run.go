package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/feedsync-core/internal/api"
	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/database"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/feedsync-core/internal/process"
	"github.com/nerrad567/feedsync-core/internal/profile"
	"github.com/nerrad567/feedsync-core/internal/scheduler"
	"github.com/nerrad567/feedsync-core/internal/signal"
	"github.com/nerrad567/feedsync-core/migrations"
)

// shutdownTimeout bounds the final Stop that zeroes every actuator.
const shutdownTimeout = 5 * time.Second

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting FeedSync Core",
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
	defer log.Close() //nolint:errcheck // nothing useful to do on shutdown
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", db.Path())

	topics := mqtt.Topics{}
	var mqttClient *mqtt.Client
	if cfg.NeedsMQTT() {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
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
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	feed := signal.NewFeed()
	extractor, err := buildExtractor(cfg.Signal, feed)
	if err != nil {
		return err
	}
	var apiFeed *signal.Feed
	switch cfg.Signal.Source {
	case config.SourceMQTT:
		if err := signal.SubscribeFeed(mqttClient, cfg.Signal.Topic, byte(cfg.MQTT.QoS), feed); err != nil {
			return fmt.Errorf("subscribing to feed topic: %w", err)
		}
		log.Info("reading feed text from MQTT", "topic", cfg.Signal.Topic)
	default:
		apiFeed = feed
		log.Info("reading feed text from the HTTP API")
	}

	// Background workers outlive ctx until the engine has been stopped, so
	// the final transition still reaches the session log, the broker and a
	// supervised Intiface Engine.
	workCtx, stopWork := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(workCtx)
	defer func() {
		stopWork()
		g.Wait() //nolint:errcheck // reported on the normal path
	}()

	var engineHost *process.Supervisor
	if cfg.Channel.Type == config.ChannelIntiface && cfg.Channel.Intiface.Engine.Enabled {
		engineHost = startEngineHost(ctx, g, gctx, cfg.Channel.Intiface.Engine, log)
	}

	channel := openChannel(ctx, cfg, mqttClient, topics, engineHost, log)
	defer func() {
		log.Info("closing device channel", "type", channel.kind)
		if closeErr := channel.close(); closeErr != nil {
			log.Error("error closing device channel", "error", closeErr)
		}
	}()

	dispatcher := engine.NewQueueDispatcher(channel, cfg.Engine.SendTimeout, log)
	dispatcher.Start()
	defer dispatcher.Stop()

	loop := scheduler.NewLoop(log)
	loop.Start()
	defer loop.Stop()

	eng := engine.New(loop, extractor, dispatcher, engine.Options{
		TickInterval:        cfg.Engine.TickInterval,
		OscillationInterval: cfg.Engine.OscillationInterval,
		Frequency:           cfg.Engine.Frequency,
		MaxDevices:          cfg.Engine.MaxDevices,
	})
	eng.SetLogger(log.With("component", "engine"))

	sessions := profile.NewSessionLog(db.DB, log)
	hub := api.NewHub(cfg.WebSocket, log)
	observers := engine.Observers{hub, sessions}
	var relay *mqtt.StateRelay
	if mqttClient != nil {
		relay = mqtt.NewStateRelay(mqttClient, topics, log)
		observers = append(observers, relay)
	}
	if influxClient != nil {
		observers = append(observers, influxdb.NewRecorder(influxClient))
	}
	eng.SetObserver(observers)

	service := engine.NewService(eng, loop, channel, profile.NewRepository(db.DB), log)

	checks := map[string]api.HealthChecker{
		"database": db,
		"channel":  channel.health,
	}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log.With("component", "api"),
		Service:       service,
		Feed:          apiFeed,
		Sessions:      sessions,
		Hub:           hub,
		ChannelStatus: channel.status,
		Checks:        checks,
		DBStats: func() api.DatabaseMetrics {
			st := db.Stats()
			return api.DatabaseMetrics{
				OpenConnections: st.OpenConnections,
				InUse:           st.InUse,
				Idle:            st.Idle,
				WaitCount:       st.WaitCount,
			}
		},
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g.Go(func() error { return sessions.Run(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if channel.monitor != nil {
		channel.onReconnect(func() {
			if _, err := service.RefreshDevices(gctx); err != nil {
				log.Warn("device refresh after reconnect failed", "error", err)
			}
		})
		g.Go(func() error { return channel.monitor(gctx) })
	}

	if devices, err := service.RefreshDevices(ctx); err != nil {
		log.Warn("initial device discovery failed", "error", err)
	} else {
		log.Info("devices discovered", "count", len(devices))
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"channel", channel.kind,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-gctx.Done():
		log.Error("background worker stopped unexpectedly")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := service.Stop(stopCtx); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		log.Warn("stopping mapping failed", "error", err)
	}
	// Deliver the zero commands before the workers go away.
	dispatcher.Stop()

	stopWork()
	err = g.Wait()

	log.Info("FeedSync Core stopped")
	return err
}

// openDatabase opens SQLite and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startEngineHost launches the local Intiface Engine under g and waits
// briefly for it to come up so the first connect has a chance to succeed.
// A supervisor that gives up is logged; the API stays available.
func startEngineHost(ctx context.Context, g *errgroup.Group, gctx context.Context, cfg config.IntifaceEngineConfig, log *logging.Logger) *process.Supervisor {
	sup := process.New(process.FromConfig(cfg))
	sup.SetLogger(log.With("component", "intiface-engine"))
	g.Go(func() error {
		if err := sup.Run(gctx); err != nil {
			log.Error("intiface engine supervisor stopped", "error", err)
		}
		return nil
	})

	timer := time.NewTimer(cfg.StartupWait + shutdownTimeout)
	defer timer.Stop()
	select {
	case <-sup.Started():
		log.Info("intiface engine launched", "binary", cfg.Binary)
		wait := time.NewTimer(cfg.StartupWait)
		defer wait.Stop()
		select {
		case <-wait.C:
		case <-ctx.Done():
		}
	case <-timer.C:
		log.Warn("intiface engine did not start in time", "binary", cfg.Binary)
	case <-ctx.Done():
	}
	return sup
}

// buildExtractor wires the tokenizer and optional phrase levels to feed.
func buildExtractor(cfg config.SignalConfig, feed *signal.Feed) (*signal.Extractor, error) {
	tokenizer := signal.NewTokenizer(cfg.MarkerMode, cfg.Marker)
	if !cfg.Phrases {
		return signal.NewExtractor(feed, tokenizer, nil), nil
	}

	levels := signal.DefaultLevels()
	if cfg.PhrasesFile != "" {
		loaded, err := signal.LoadLevels(cfg.PhrasesFile)
		if err != nil {
			return nil, fmt.Errorf("loading phrase levels: %w", err)
		}
		levels = loaded
	}
	return signal.NewExtractor(feed, tokenizer, signal.NewPhraseMatcher(levels)), nil
}
