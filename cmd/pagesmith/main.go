// cmd/pagesmith/main.go
package main

import (
	"github.com/mwiater/pagesmith/internal/commands"
)

// Set by the linker: -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = commands.SetVersionInfo
	executeCmd     = commands.Execute
)

// main starts the pagesmith CLI by delegating to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
