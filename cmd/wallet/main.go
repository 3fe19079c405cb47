package main

import (
	"os"

	"github.com/ggonzalez94/wallet-cli/internal/app"
)

func main() {
	os.Exit(app.NewRunner().Run(os.Args[1:]))
}
