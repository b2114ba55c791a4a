package app

import "github.com/spf13/pflag"

// CliOptions is implemented by the options struct an App is built around.
// Complete runs before Validate so validation sees final values.
type CliOptions interface {
	// AddFlags registers the application's flags.
	AddFlags(fs *pflag.FlagSet)
	// Complete fills in derived and defaulted fields.
	Complete() error
	// Validate returns an error if any option value is unusable.
	Validate() error
}
