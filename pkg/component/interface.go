// Package component defines the contract shared by backing-store option
// types (MySQL, PostgreSQL, Redis).
package component

import "github.com/spf13/pflag"

// ConfigOptions is implemented by every component option struct so the
// serving options can treat them uniformly.
type ConfigOptions interface {
	// Validate returns an error if any option value is unusable.
	Validate() error

	// AddFlags registers the component's flags on fs. namePrefix is
	// prepended to each flag name ("store.mysql." gives
	// --store.mysql.host) so several components can share one flag set.
	AddFlags(fs *pflag.FlagSet, namePrefix string)
}
