package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/listenup/listenup/common/util"
	"github.com/listenup/listenup/common/version"
	"github.com/listenup/listenup/server/app"
)

func main() {
	fmt.Printf("ListenUp Server v%s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))

	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	app, cleanup, err := app.New(context.Background(), config)
	if err != nil {
		log.Fatalf("Error creating app: %s", err)
	}
	defer cleanup()

	err = app.JobStore.Initialize(context.Background())
	if err != nil {
		log.Fatalf("Error initializing job store: %s", err)
	}
	app.StatusProcessor.Start()
	app.CoreAPIServer.Start()

	// Wait for SIGINT or SIGTERM before shutting down server
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()
	err = app.CoreAPIServer.Stop(ctx)
	if err != nil {
		log.Fatal(err.Error())
	}
	app.StatusProcessor.Stop()
	app.EventService.Close()
	log.Print("Server shutdown complete")
}
