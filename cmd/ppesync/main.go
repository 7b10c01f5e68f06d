// ppesync CLI entry point
//
// ppesync keeps PPE inspection writes durable while offline and replays
// them against the remote record store once connectivity returns.
package main

import "github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
