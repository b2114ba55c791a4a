package microauth

import (
	"github.com/tinyauth/microauth/pkg/app"
)

const (
	appName        = "microauth"
	appDescription = `Microauth authorization service

Centralized authentication and authorization:
  - Policy-based authorization decisions
  - Access key, session token and login verification
  - Signing key derivation
  - User, group and policy management

Runs against a local store or as a caching proxy to an upstream instance.`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Microauth authorization service"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}
