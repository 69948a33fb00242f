package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ticktree/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./ticktree.yaml", "path to config (yaml or json)")
	flag.Parse()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	// The driver subscribes to SIGINT/SIGTERM itself and stops the tree.
	if err := a.Run(context.Background()); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
