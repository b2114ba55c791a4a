// Package microauth assembles the authorization service: options, wiring
// and the HTTP server lifecycle.
package microauth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tinyauth/microauth/internal/microauth/store"
	logopts "github.com/tinyauth/microauth/pkg/component/logger"
	redisopts "github.com/tinyauth/microauth/pkg/component/redis"
)

// Mode selects whether decisions are made against the local store or
// forwarded to an upstream instance.
const (
	ModeLocal = "local"
	ModeProxy = "proxy"
)

// Options contains all service options.
type Options struct {
	// Addr is the HTTP listen address.
	Addr string `json:"addr" mapstructure:"addr"`
	// Mode is "local" or "proxy".
	Mode string `json:"mode" mapstructure:"mode"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// RootSecret seeds the signing key derivation chain.
	RootSecret string `json:"root-secret" mapstructure:"root-secret"`
	// SessionSecret signs and verifies session tokens.
	SessionSecret string `json:"session-secret" mapstructure:"session-secret"`
	// TokenTTL is the session token lifetime.
	TokenTTL time.Duration `json:"token-ttl" mapstructure:"token-ttl"`

	// Upstream is the base URL decisions are forwarded to in proxy mode.
	Upstream string `json:"upstream" mapstructure:"upstream"`
	// UpstreamTimeout bounds one upstream call.
	UpstreamTimeout time.Duration `json:"upstream-timeout" mapstructure:"upstream-timeout"`

	// CacheBackend is "memory" or "redis". Only used in proxy mode.
	CacheBackend string `json:"cache-backend" mapstructure:"cache-backend"`
	// CacheTTL bounds decision staleness in proxy mode.
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
	// CacheMaxEntries caps the in-memory decision cache.
	CacheMaxEntries int `json:"cache-max-entries" mapstructure:"cache-max-entries"`

	// AuditWorkers sizes the async audit pool.
	AuditWorkers int `json:"audit-workers" mapstructure:"audit-workers"`

	Log   *logopts.Options   `json:"log" mapstructure:"log"`
	Store *store.Options     `json:"store" mapstructure:"store"`
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Addr:            ":8080",
		Mode:            ModeLocal,
		ShutdownTimeout: 10 * time.Second,
		TokenTTL:        8 * time.Hour,
		UpstreamTimeout: 5 * time.Second,
		CacheBackend:    "memory",
		CacheTTL:        time.Minute,
		CacheMaxEntries: 65536,
		AuditWorkers:    4,
		Log:             logopts.NewOptions(),
		Store:           store.NewOptions(),
		Redis:           redisopts.NewOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "addr", o.Addr, "HTTP listen address")
	fs.StringVar(&o.Mode, "mode", o.Mode, "Decision mode (local|proxy)")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	fs.StringVar(&o.RootSecret, "root-secret", o.RootSecret, "Root secret for signing key derivation")
	fs.StringVar(&o.SessionSecret, "session-secret", o.SessionSecret, "Secret for session token verification")
	fs.DurationVar(&o.TokenTTL, "token-ttl", o.TokenTTL, "Session token lifetime")

	fs.StringVar(&o.Upstream, "upstream", o.Upstream, "Upstream base URL for proxy mode")
	fs.DurationVar(&o.UpstreamTimeout, "upstream-timeout", o.UpstreamTimeout, "Timeout for one upstream call")

	fs.StringVar(&o.CacheBackend, "cache.backend", o.CacheBackend, "Decision cache backend (memory|redis)")
	fs.DurationVar(&o.CacheTTL, "cache.ttl", o.CacheTTL, "Decision cache entry lifetime")
	fs.IntVar(&o.CacheMaxEntries, "cache.max-entries", o.CacheMaxEntries, "Decision cache entry cap (memory backend)")

	fs.IntVar(&o.AuditWorkers, "audit-workers", o.AuditWorkers, "Async audit worker count")

	fs.StringVar(&o.Store.Driver, "store.driver", o.Store.Driver, "Database driver (sqlite|mysql|postgres)")
	fs.StringVar(&o.Store.DSN, "store.dsn", o.Store.DSN, "Sqlite database path")

	o.Log.AddFlags(fs)
	o.Store.MySQL.AddFlags(fs, "store.mysql.")
	o.Store.Postgres.AddFlags(fs, "store.postgres.")
	o.Redis.AddFlags(fs, "redis.")
}

// Complete fills secrets from the environment when flags and config left
// them empty.
func (o *Options) Complete() error {
	if o.SessionSecret == "" {
		o.SessionSecret = os.Getenv("MICROAUTH_SESSION_SECRET")
	}
	if o.RootSecret == "" {
		o.RootSecret = os.Getenv("MICROAUTH_ROOT_SECRET")
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Mode != ModeLocal && o.Mode != ModeProxy {
		return fmt.Errorf("unknown mode %q", o.Mode)
	}
	if o.Mode == ModeProxy && o.Upstream == "" {
		return fmt.Errorf("proxy mode requires --upstream")
	}
	if o.Mode == ModeLocal && o.SessionSecret == "" {
		return fmt.Errorf("session secret is required (--session-secret or MICROAUTH_SESSION_SECRET)")
	}
	if o.CacheBackend != "memory" && o.CacheBackend != "redis" {
		return fmt.Errorf("unknown cache backend %q", o.CacheBackend)
	}
	if o.CacheBackend == "redis" {
		if err := o.Redis.Validate(); err != nil {
			return err
		}
	}
	if err := o.Log.Validate(); err != nil {
		return err
	}
	switch o.Store.Driver {
	case "sqlite":
	case "mysql":
		if err := o.Store.MySQL.Validate(); err != nil {
			return err
		}
	case "postgres":
		if err := o.Store.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown store driver %q", o.Store.Driver)
	}
	return nil
}
