package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"parley/api"
	"parley/chat"
	"parley/config"
	"parley/realtime"
	"parley/session"
	"parley/ui"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "parley",
	Short:        "Terminal client for a direct-message chat backend",
	SilenceUsage: true,
	RunE:         run,
}

var (
	flagServerURL string
	flagLogLevel  string
	flagLogFile   string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server", "", "backend base URL (overrides PARLEY_SERVER_URL)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (overrides PARLEY_LOG_LEVEL)")
	flags.StringVar(&flagLogFile, "log-file", "", `log file, "-" for stderr (overrides PARLEY_LOG_FILE)`)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute parley command")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	backend, err := api.New(cfg.ServerURL, api.WithTimeout(cfg.RequestTimeout), api.WithLogger(logger))
	if err != nil {
		return err
	}
	dialer := chat.WebsocketDialer{
		URL: backend.WebsocketURL(),
		Options: []realtime.Option{
			realtime.WithKeepalive(cfg.PingInterval, cfg.PongWait),
			realtime.WithDialer(&websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: cfg.RequestTimeout,
			}),
			realtime.WithLogger(logger),
		},
	}

	app := ui.NewApp(displayHost(cfg.ServerURL), logger)
	ctrl := chat.New(backend, dialer, app, session.New(), chat.WithLogger(logger))
	app.Bind(ctrl)

	logger.Info().Str("server", cfg.ServerURL).Msg("starting")
	err = app.Run()
	ctrl.Logout()
	if err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// loadConfig reads the environment, applies the flags that were set and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("server") {
		cfg.ServerURL = flagServerURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to the configured file; the terminal belongs to the UI.
func newLogger(cfg *config.Config) (zerolog.Logger, func(), error) {
	var out io.Writer
	closeFn := func() {}
	if cfg.LogFile == "-" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	} else {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger := zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
	return logger, closeFn, nil
}

func displayHost(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	return u.Host
}
