package main

import (
	"github.com/pasta-project/pasta-go/cmd"
)

func main() {
	cmd.Execute()
}
