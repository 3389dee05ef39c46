package main

import (
	"github.com/procurex/requisition-engine/cmd"
)

func main() {
	cmd.Execute()
}
