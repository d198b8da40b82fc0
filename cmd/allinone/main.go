// Command allinone runs the frontend, the backend and an embedded NATS
// server in one process.
package main

import (
	"os"

	"github.com/fluxorio/wordbridge/pkg/bootstrap"
)

func main() {
	os.Exit(bootstrap.Run(bootstrap.RoleAllInOne, os.Args[1:], os.Stdout))
}
