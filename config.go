package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	pingInterval   time.Duration
	pongTimeout    time.Duration
	port           int
	prefix         string
	profile        bool
	roles          string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	writeTimeout   time.Duration

	logger zerolog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	if c.pingInterval <= 0 || c.pongTimeout <= 0 || c.writeTimeout <= 0 {
		return errors.New("--ping-interval, --pong-timeout and --write-timeout must be positive")
	}
	if c.pingInterval >= c.pongTimeout {
		return fmt.Errorf("--ping-interval (%s) must be shorter than --pong-timeout (%s)", c.pingInterval, c.pongTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: logDate}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CLOCKTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "clocktower",
		Short:         "Hosts shared Clocktower game sessions, kept in sync over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			cfg.logger = newLogger(cfg.verbose)
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CLOCKTOWER_BIND)")
	fs.DurationVar(&cfg.pingInterval, "ping-interval", defaultPingInterval, "how often to ping each websocket client (env: CLOCKTOWER_PING_INTERVAL)")
	fs.DurationVar(&cfg.pongTimeout, "pong-timeout", defaultPongTimeout, "time without a pong before a websocket client is dropped (env: CLOCKTOWER_PONG_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CLOCKTOWER_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CLOCKTOWER_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CLOCKTOWER_PROFILE)")
	fs.StringVar(&cfg.roles, "roles", "", "path to role catalog file; built-in roles are used when unset or unreadable (env: CLOCKTOWER_ROLES)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 0, "time before idle game sessions are ended, 0 to keep them for the life of the process (env: CLOCKTOWER_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CLOCKTOWER_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CLOCKTOWER_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CLOCKTOWER_VERBOSE)")
	fs.DurationVar(&cfg.writeTimeout, "write-timeout", defaultWriteTimeout, "time allowed for a single websocket write (env: CLOCKTOWER_WRITE_TIMEOUT)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CLOCKTOWER_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("clocktower v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
