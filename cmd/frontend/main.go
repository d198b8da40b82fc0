// Command frontend serves the word bridge web page and REST endpoints.
// Submitted words are published for a backend to transform; replies are
// buffered until polled.
package main

import (
	"os"

	"github.com/fluxorio/wordbridge/pkg/bootstrap"
)

func main() {
	os.Exit(bootstrap.Run(bootstrap.RoleFrontend, os.Args[1:], os.Stdout))
}
