// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/dotdir"
	"github.com/papercomputeco/relay/pkg/eventstream"
	eventkafka "github.com/papercomputeco/relay/pkg/eventstream/kafka"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/storage"
	"github.com/papercomputeco/relay/pkg/storage/inmemory"
	"github.com/papercomputeco/relay/pkg/storage/postgres"
	"github.com/papercomputeco/relay/pkg/storage/sqlite"
	"github.com/papercomputeco/relay/pkg/upstream/openai"
	"github.com/papercomputeco/relay/relay"
)

type serveCommander struct {
	listen string

	storageDriver string
	sqlitePath    string
	postgresDSN   string

	upstreamBaseURL string
	upstreamModel   string
	upstreamAPIKey  string
	upstreamStream  bool
	upstreamTimeout uint

	eventsBrokers []string
	eventsTopic   string

	configDir string
	debug     bool

	logger *zap.Logger
}

// serveFlags are the registry keys for every flag the serve command binds.
var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagUpstreamBaseURL,
	config.FlagUpstreamModel,
	config.FlagUpstreamStream,
	config.FlagUpstreamTimeout,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the relay server.

The relay accepts one streaming chat request per user turn, persists the
thread, forwards the conversation to the configured completion provider, and
streams the reply back as server-sent events.

The provider API key is read from the RELAY_UPSTREAM_API_KEY environment
variable (or upstream.api_key in config.toml).

Examples:
  relay serve
  relay serve --storage-driver sqlite --sqlite ~/.relay/relay.db
  relay serve --upstream-base-url http://localhost:11434/v1 --upstream-model llama3`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.listen = v.GetString("relay.listen")
			cmder.storageDriver = v.GetString("storage.driver")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.upstreamBaseURL = v.GetString("upstream.base_url")
			cmder.upstreamModel = v.GetString("upstream.model")
			cmder.upstreamAPIKey = v.GetString("upstream.api_key")
			cmder.upstreamStream = v.GetBool("upstream.stream")
			cmder.upstreamTimeout = v.GetUint("upstream.timeout_seconds")
			cmder.eventsBrokers = v.GetStringSlice("events.brokers")
			cmder.eventsTopic = v.GetString("events.topic")

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstreamBaseURL, &cmder.upstreamBaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstreamModel, &cmder.upstreamModel)
	config.AddBoolFlag(cmd, config.Flags, config.FlagUpstreamStream, &cmder.upstreamStream)
	config.AddUintFlag(cmd, config.Flags, config.FlagUpstreamTimeout, &cmder.upstreamTimeout)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	driver, err := c.newStorageDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	completer := openai.NewClient(openai.Config{
		BaseURL: c.upstreamBaseURL,
		APIKey:  c.upstreamAPIKey,
		Model:   c.upstreamModel,
		Stream:  c.upstreamStream,
		Timeout: time.Duration(c.upstreamTimeout) * time.Second,
	}, c.logger)

	var publisher eventstream.Publisher
	if len(c.eventsBrokers) > 0 {
		kafkaPub := eventkafka.NewPublisher(c.eventsBrokers, c.eventsTopic)
		defer kafkaPub.Close()
		publisher = kafkaPub

		c.logger.Info("turn event publishing enabled",
			zap.Strings("brokers", c.eventsBrokers),
			zap.String("topic", c.eventsTopic),
		)
	}

	r, err := relay.New(relay.Config{
		ListenAddr: c.listen,
		Publisher:  publisher,
	}, storage.Serialized(driver), completer, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	// Shut down on SIGINT/SIGTERM so the event pool drains.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := r.Close(); err != nil {
			c.logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	c.logger.Info("starting relay server",
		zap.String("listen", c.listen),
		zap.String("storage", c.storageDriver),
		zap.String("upstream", c.upstreamBaseURL),
		zap.String("model", c.upstreamModel),
	)

	return r.Run()
}

func (c *serveCommander) newStorageDriver() (storage.Driver, error) {
	switch c.storageDriver {
	case "sqlite":
		path := c.sqlitePath
		if path == "" {
			ddm := dotdir.NewManager()
			target, err := ddm.Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = filepath.Join(target, "relay.db")
		}

		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite driver: %w", err)
		}
		c.logger.Info("using sqlite storage", zap.String("path", path))
		return driver, nil

	case "postgres":
		if c.postgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}

		driver, err := postgres.NewDriver(c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres driver: %w", err)
		}
		c.logger.Info("using postgres storage")
		return driver, nil

	case "", "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (available: memory, sqlite, postgres)", c.storageDriver)
	}
}
