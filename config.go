package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	orderDuration    time.Duration
	maxActiveOrders  int
	minOrderInterval time.Duration
	maxOrderInterval time.Duration
	servePoints      int
	expiryPenalty    int
	warnThreshold    int
	dangerThreshold  int
	removalDelay     time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.orderDuration < time.Second {
		return fmt.Errorf("invalid order duration (must be at least 1s): %s", c.orderDuration)
	}
	if c.maxActiveOrders < 1 {
		return fmt.Errorf("invalid max active orders (must be at least 1): %d", c.maxActiveOrders)
	}
	if c.minOrderInterval <= 0 || c.maxOrderInterval < c.minOrderInterval {
		return fmt.Errorf("invalid order interval range: %s-%s", c.minOrderInterval, c.maxOrderInterval)
	}
	if c.servePoints < 0 {
		return fmt.Errorf("invalid serve points (must not be negative): %d", c.servePoints)
	}
	if c.expiryPenalty < 0 {
		return fmt.Errorf("invalid expiry penalty (must not be negative): %d", c.expiryPenalty)
	}
	if c.dangerThreshold < 1 || c.warnThreshold <= c.dangerThreshold || c.warnThreshold > 99 {
		return fmt.Errorf("invalid urgency thresholds (need 0 < danger < warning < 100): warning=%d danger=%d", c.warnThreshold, c.dangerThreshold)
	}
	if c.removalDelay < 0 {
		return fmt.Errorf("invalid removal delay (must not be negative): %s", c.removalDelay)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// rules converts the flag values into the engine's rule set.
func (c *Config) rules() Rules {
	return Rules{
		OrderDuration:    int(c.orderDuration / time.Second),
		MaxActiveOrders:  c.maxActiveOrders,
		MinOrderInterval: c.minOrderInterval,
		MaxOrderInterval: c.maxOrderInterval,
		ServePoints:      c.servePoints,
		ExpiryPenalty:    c.expiryPenalty,
		WarnThreshold:    c.warnThreshold,
		DangerThreshold:  c.dangerThreshold,
		RemovalDelay:     c.removalDelay,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KITCHENRUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "kitchenrush",
		Short:         "A frantic little cooking game, served straight to the browser.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: KITCHENRUSH_BIND)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before idle players are forgotten (env: KITCHENRUSH_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: KITCHENRUSH_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: KITCHENRUSH_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: KITCHENRUSH_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: KITCHENRUSH_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: KITCHENRUSH_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: KITCHENRUSH_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: KITCHENRUSH_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: KITCHENRUSH_VERSION)")

	fs.DurationVar(&cfg.orderDuration, "order-duration", 30*time.Second, "time customers wait before walking out (env: KITCHENRUSH_ORDER_DURATION)")
	fs.IntVar(&cfg.maxActiveOrders, "max-active-orders", 4, "maximum number of simultaneous orders (env: KITCHENRUSH_MAX_ACTIVE_ORDERS)")
	fs.DurationVar(&cfg.minOrderInterval, "min-order-interval", 2*time.Second, "minimum delay between new orders (env: KITCHENRUSH_MIN_ORDER_INTERVAL)")
	fs.DurationVar(&cfg.maxOrderInterval, "max-order-interval", 5*time.Second, "maximum delay between new orders (env: KITCHENRUSH_MAX_ORDER_INTERVAL)")
	fs.IntVar(&cfg.servePoints, "serve-points", 2, "points awarded for a correctly served order (env: KITCHENRUSH_SERVE_POINTS)")
	fs.IntVar(&cfg.expiryPenalty, "expiry-penalty", 10, "points deducted when an order times out (env: KITCHENRUSH_EXPIRY_PENALTY)")
	fs.IntVar(&cfg.warnThreshold, "warning-threshold", 40, "timer percentage at or below which an order turns urgent (env: KITCHENRUSH_WARNING_THRESHOLD)")
	fs.IntVar(&cfg.dangerThreshold, "danger-threshold", 20, "timer percentage at or below which an order turns critical (env: KITCHENRUSH_DANGER_THRESHOLD)")
	fs.DurationVar(&cfg.removalDelay, "removal-delay", 500*time.Millisecond, "how long finished orders linger for the exit animation (env: KITCHENRUSH_REMOVAL_DELAY)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("kitchenrush v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
