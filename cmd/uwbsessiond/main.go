// uwbsessiond is the UWB ranging session-manager controller-side daemon.
package main

import (
	"github.com/dantte-lp/uwbsessiond/cmd/uwbsessiond/commands"
)

func main() {
	commands.Execute()
}
