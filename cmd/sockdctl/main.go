// Command sockdctl is a demonstration CLI client for a sockd daemon.
package main

import "github.com/dantte-lp/sockd/cmd/sockdctl/commands"

func main() {
	commands.Execute()
}
