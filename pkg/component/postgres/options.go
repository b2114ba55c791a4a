// Package postgres provides PostgreSQL connection options and DSN construction.
package postgres

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// redactedPassword is the placeholder used when serializing passwords.
const redactedPassword = "[REDACTED]"

// Options defines configuration options for PostgreSQL.
type Options struct {
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"sslmode" mapstructure:"sslmode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: time.Hour,
	}
}

// Validate checks if the options are valid. An empty password falls back to
// the PGPASSWORD environment variable.
func (o *Options) Validate() error {
	if o.Password == "" {
		o.Password = os.Getenv("PGPASSWORD")
	}
	if o.Database == "" {
		return fmt.Errorf("postgres database name is required")
	}
	return nil
}

// String returns a representation with the password redacted. Safe for logs.
func (o *Options) String() string {
	password := redactedPassword
	if o.Password == "" {
		password = ""
	}
	return fmt.Sprintf("Postgres{host=%s, port=%d, user=%s, password=%s, database=%s, sslmode=%s}",
		o.Host, o.Port, o.Username, password, o.Database, o.SSLMode)
}

// AddFlags adds flags for PostgreSQL options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Host, namePrefix+"host", o.Host, "PostgreSQL host")
	fs.IntVar(&o.Port, namePrefix+"port", o.Port, "PostgreSQL port")
	fs.StringVar(&o.Username, namePrefix+"username", o.Username, "PostgreSQL username")
	fs.StringVar(&o.Password, namePrefix+"password", o.Password, "PostgreSQL password (prefer PGPASSWORD env)")
	fs.StringVar(&o.Database, namePrefix+"database", o.Database, "PostgreSQL database name")
	fs.StringVar(&o.SSLMode, namePrefix+"sslmode", o.SSLMode, "PostgreSQL sslmode")
	fs.IntVar(&o.MaxIdleConnections, namePrefix+"max-idle-connections", o.MaxIdleConnections, "Maximum idle connections")
	fs.IntVar(&o.MaxOpenConnections, namePrefix+"max-open-connections", o.MaxOpenConnections, "Maximum open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, namePrefix+"max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection life time")
}

// BuildDSN creates a PostgreSQL DSN from the options. The password is quoted
// so special characters cannot break the space-separated key=value format.
func BuildDSN(opts *Options) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		escapeValue(opts.Password),
		opts.Database,
		opts.SSLMode,
	)
}

// escapeValue quotes a libpq connection-string value when it contains
// characters that would otherwise terminate it.
func escapeValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
