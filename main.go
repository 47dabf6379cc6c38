package main

import (
	"github.com/luma/ondemand/cmd"
)

func main() {
	cmd.Execute()
}
