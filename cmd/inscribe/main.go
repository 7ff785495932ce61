package main

import (
	"os"

	"inscribe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
