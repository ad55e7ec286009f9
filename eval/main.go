// eval contains a tool for evaluating the dgram transport.
package main

import (
	"github.com/andydunstall/dgram/eval/cmd"
)

func main() {
	cmd.Execute()
}
