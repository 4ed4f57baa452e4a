package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/adapters/clock"
	"github.com/nat80/upnext/internal/adapters/kodi"
	"github.com/nat80/upnext/internal/adapters/mqtt"
	"github.com/nat80/upnext/internal/adapters/tmdb"
	"github.com/nat80/upnext/internal/core"
	embeddedmqtt "github.com/nat80/upnext/internal/modules/embedded_mqtt"
	"github.com/nat80/upnext/internal/modules/tracker"
	"github.com/nat80/upnext/internal/upnextd"
	"github.com/nat80/upnext/pkg/upnext"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := upnextd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (console|json)")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath, defaultConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat)

	settings, err := cfg.Settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := upnextd.NewLogger(upnextd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	skipEmbedded := false
	if cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedBrokerURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("upnextd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("kodi", cfg.Kodi.BaseURL),
		zap.Bool("tmdb", cfg.TMDB.APIKey != ""),
		zap.Bool("embedded_mqtt", cfg.Modules.EmbeddedMQTT.Enabled),
	)

	client, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  fmt.Sprintf("%s-%d", cfg.Server.Identity, time.Now().UnixNano()),
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		TopicBase: cfg.Server.TopicBase,
		Timeout:   2 * time.Second,
		Logger:    logger.With(zap.String("component", "mqtt")),
	})
	if err != nil {
		logger.Error("mqtt connection failed", zap.Error(err))
		os.Exit(1)
	}
	defer client.Disconnect()

	modules, err := buildModules(cfg, settings, client, logger, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := upnextd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig tolerates a missing file at the default location; an explicit
// -config path must exist.
func loadConfig(path, defaultPath string) (upnextd.Config, error) {
	if path == defaultPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return upnextd.DefaultConfig(), nil
		}
	}
	return upnextd.LoadConfig(path)
}

func applyOverrides(cfg *upnextd.Config, broker, identity, topicBase, logLevel, logFormat string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = upnext.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg upnextd.Config, settings core.Settings, client *mqtt.Client, logger *zap.Logger, skipEmbedded bool) ([]upnextd.ModuleRunner, error) {
	modules := []upnextd.ModuleRunner{}

	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		mod, err := newEmbeddedBroker(cfg, logger)
		if err != nil {
			return nil, err
		}
		modules = append(modules, upnextd.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	if cfg.Tracker.Enabled {
		kodiClient, err := kodi.New(
			cfg.Kodi.BaseURL,
			cfg.Kodi.Username,
			cfg.Kodi.Password,
			time.Duration(cfg.Kodi.TimeoutMS)*time.Millisecond,
			logger.With(zap.String("component", "kodi")),
		)
		if err != nil {
			return nil, err
		}

		lookup := tmdb.New(
			cfg.TMDB.BaseURL,
			cfg.TMDB.APIKey,
			time.Duration(cfg.TMDB.TimeoutMS)*time.Millisecond,
			logger.With(zap.String("component", "tmdb")),
		)

		state := core.NewState(settings, core.Deps{
			Library:  kodiClient,
			Playlist: kodiClient,
			Player:   kodiClient,
			Queue:    kodiClient,
			Signaler: client,
			Lookup:   lookup,
		}, logger.With(zap.String("component", "state")))

		mod, err := tracker.NewModule(logger.With(zap.String("module", "tracker")), client, tracker.Deps{
			State:    state,
			Player:   kodiClient,
			Playlist: kodiClient,
			Clock:    clock.Clock{},
		}, tracker.Config{
			TopicBase:    cfg.Server.TopicBase,
			PollInterval: time.Duration(cfg.Tracker.PollIntervalMS) * time.Millisecond,
			Settings:     settings,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, upnextd.ModuleRunner{Name: "tracker", Run: mod.Run})
	}

	return modules, nil
}

func newEmbeddedBroker(cfg upnextd.Config, logger *zap.Logger) (*embeddedmqtt.Module, error) {
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		TopicBase:      cfg.Server.TopicBase,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
}

func printResolvedConfig(cfg upnextd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s kodi=%s tmdb=%t tracker=%t embedded_mqtt=%t\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Kodi.BaseURL,
		cfg.TMDB.APIKey != "",
		cfg.Tracker.Enabled,
		cfg.Modules.EmbeddedMQTT.Enabled,
	)
}

func embeddedBrokerURL(cfg upnextd.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return embeddedmqtt.BrokerURL(listen, tlsEnabled)
}

func startEmbeddedBroker(ctx context.Context, cfg upnextd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := newEmbeddedBroker(cfg, logger)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
