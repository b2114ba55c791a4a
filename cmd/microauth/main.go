// Package main is the entry point for the microauth service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/tinyauth/microauth/internal/microauth"
)

func main() {
	microauth.NewApp().Run()
}
