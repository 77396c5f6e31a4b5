package main

import (
	"github.com/xkilldash9x/suture-cli/cmd"
)

func main() {
	cmd.Execute()
}
