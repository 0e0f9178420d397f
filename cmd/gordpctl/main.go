// gordpctl is a direct RDP client driver: it dials a server and runs the
// connection-phase state machine to completion or failure, without a
// daemon or control-plane process in between.
package main

import "github.com/dantte-lp/gordp/cmd/gordpctl/commands"

func main() {
	commands.Execute()
}
