package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"armada/server/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	addr := flag.String("addr", "", "listen address override")
	clientDir := flag.String("client", "", "directory of static client files to serve")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{
		ConfigPath: *configPath,
		Addr:       *addr,
		ClientDir:  *clientDir,
	}); err != nil {
		log.Fatalf("%v", err)
	}
}
