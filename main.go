// The main package for the reportsync executable.
package main

import "github.com/fleetops/reportsync/cmd"

func main() {
	cmd.Execute()
}
