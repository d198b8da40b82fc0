// Command backend uppercases published words and publishes the replies.
package main

import (
	"os"

	"github.com/fluxorio/wordbridge/pkg/bootstrap"
)

func main() {
	os.Exit(bootstrap.Run(bootstrap.RoleBackend, os.Args[1:], os.Stdout))
}
