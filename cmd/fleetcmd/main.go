// Command fleetcmd is the Commander binary: it discovers every ship on the
// configured agent's account, assigns missions via FleetStrategy, and
// supervises them until interrupted.
package main

import (
	"github.com/andrescamacho/fleetcmd/internal/adapters/cli"
)

func main() {
	cli.Execute()
}
