package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/holoquest/internal/api"
	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/clock"
	"github.com/AaronLay10/holoquest/internal/companion"
	"github.com/AaronLay10/holoquest/internal/config"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/mqtt"
	"github.com/AaronLay10/holoquest/internal/otel"
	"github.com/AaronLay10/holoquest/internal/skill"
	"github.com/AaronLay10/holoquest/internal/storage"
	"github.com/AaronLay10/holoquest/internal/storage/postgres"
	"github.com/AaronLay10/holoquest/internal/storage/sqlite"
	"github.com/AaronLay10/holoquest/internal/version"
)

func main() {
	configPath := flag.String("config", "config/game.yaml", "path to game.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lvl, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logger := logging.New(os.Stdout, lvl).With(map[string]interface{}{
		"room": cfg.Room.ID,
	})

	hostname, _ := os.Hostname()
	logger.Info("system.startup", "holoquest starting", map[string]interface{}{
		"service":  "holoquest",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("system.exit", "holoquest stopped with error", map[string]interface{}{
			"error": err,
		})
		os.Exit(1)
	}
	logger.Info("system.shutdown", "holoquest stopped", nil)
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Service)
	if err != nil {
		logger.Warn("otel.setup_failed", "tracing disabled", map[string]interface{}{"error": err})
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	store, err := openStore(cfg)
	if err != nil {
		// The game runs without a journal; /ready reports storage unavailable.
		logger.Warn("storage.unavailable", "journal disabled", map[string]interface{}{
			"driver": cfg.Storage.Driver,
			"error":  err,
		})
	}
	if store != nil {
		defer store.Close()
	}

	busOpts := []bus.Option{bus.WithLogger(logger)}
	if store != nil {
		var topics []bus.Topic
		for _, t := range cfg.JournalTopics() {
			topics = append(topics, bus.Topic(t))
		}
		busOpts = append(busOpts, bus.WithJournal(store, topics...))
	}
	b := bus.New(busOpts...)
	// Runs before store.Close so queued journal entries are written.
	defer b.CloseJournal()
	defer b.CloseTaps()

	// The game clock always freezes while paused. Level timers follow it
	// only when configured to.
	gameClock := clock.NewPausable(clock.Wall{})
	var timerClock clock.Clock = clock.Wall{}
	if cfg.Game.TimerClock == "game" {
		timerClock = gameClock
	}

	levelOpts := level.Options{Bus: b, Logger: logger, Clock: timerClock}
	if cfg.Game.AssetsDir != "" {
		levelOpts.Loader = level.FileLoader{Root: cfg.Game.AssetsDir}
	}
	catalog, err := openCatalog(cfg, levelOpts)
	if err != nil {
		return err
	}
	if cfg.Game.WatchLevels && catalog.Dir() != "" {
		w, err := level.Watch(catalog, 0, logger)
		if err != nil {
			return fmt.Errorf("watch levels: %w", err)
		}
		defer w.Close()
	}

	tracker := skill.New(skill.Options{
		Clock:      gameClock,
		Thresholds: skill.Thresholds{Fast: cfg.Skill.Fast, Slow: cfg.Skill.Slow},
		Window:     cfg.Skill.Window,
		Logger:     logger,
	})
	if store != nil {
		n, err := tracker.Restore(store, cfg.Skill.RestoreLimit)
		if err != nil {
			logger.Warn("skill.restore_failed", "skill history not restored", map[string]interface{}{"error": err})
		} else {
			logger.Info("skill.restored", "skill history restored", map[string]interface{}{
				"completions": n,
				"tier":        tracker.Tier(),
			})
		}
	}
	tracker.Attach(b)
	defer tracker.Detach()

	presenters := game.Presenters{game.LogPresenter{Log: logger}}
	var probe game.Probe
	var client *mqtt.Client
	var bridge *mqtt.Bridge
	if cfg.MQTT.Broker != "" {
		client = mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Logger:   logger,
		})
		if err := client.Connect(); err != nil {
			// Paho keeps retrying in the background; subscriptions are
			// replayed once the broker comes up.
			logger.Warn("mqtt.connect_failed", "MQTT broker unavailable", map[string]interface{}{
				"broker": cfg.MQTT.Broker,
				"error":  err,
			})
		}
		defer client.Disconnect()

		bridge = mqtt.NewBridge(client, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}, b, logger)
		presenters = append(presenters, bridge.Display)
		probe = bridge.Probe
	}

	initial := cfg.Game.InitialLevel
	if initial == "" {
		initial = catalog.First()
	}
	session := game.NewSession(game.SessionConfig{
		Controller: game.Config{
			Bus:        b,
			Factory:    catalog,
			Logger:     logger,
			Probe:      probe,
			Presenter:  presenters,
			Companions: companion.Factory(companion.Options{IdleAfter: cfg.Game.CompanionIdle, Logger: logger}),
			Skill:      tracker,
			GameClock:  gameClock,
		},
		InitialLevel:   initial,
		DifficultyHint: cfg.DifficultyHint(),
		FrameInterval:  cfg.Game.FrameInterval,
	})
	defer session.Stop()

	var journal api.Journal
	if store != nil {
		journal = store
	}
	server := api.New(api.Options{
		Game:    session,
		Bus:     b,
		Journal: journal,
		Auth:    cfg.Auth,
		TLS:     api.TLSConfig{CertFile: cfg.Network.TLSCert, KeyFile: cfg.Network.TLSKey},
		RoomID:  cfg.Room.ID,
		Logger:  logger,
	})
	if cfg.Storage.Driver != "none" {
		server.Readiness().SetStorage(b.JournalHealthy, true)
	}

	if bridge != nil {
		if err := bridge.Start(session); err != nil {
			return fmt.Errorf("start mqtt bridge: %w", err)
		}
		server.Readiness().SetMQTT(client.IsConnected, true)
		server.Readiness().SetProps(bridge.Monitor.Connected)
	}

	// A failed first load leaves the session recoverable through
	// POST /game/level, so it does not stop the process.
	if err := session.Start(ctx); err != nil {
		logger.Error("game.start_failed", "initial level failed to load", map[string]interface{}{
			"level_id": initial,
			"error":    err,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Network.APIPort))
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}
	return g.Wait()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pg := cfg.Storage.Postgres
		c, err := postgres.New(postgres.Params{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		}, cfg.Room.ID)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.Storage.SQLitePath, cfg.Room.ID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

func openCatalog(cfg *config.Config, opts level.Options) (*level.Catalog, error) {
	if cfg.Game.LevelsDir == "" {
		return level.NewCatalog(opts)
	}
	c, err := level.LoadCatalog(cfg.Game.LevelsDir, opts)
	if err != nil {
		return nil, fmt.Errorf("load levels from %s: %w", cfg.Game.LevelsDir, err)
	}
	return c, nil
}
