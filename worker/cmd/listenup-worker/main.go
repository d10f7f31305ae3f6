package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/listenup/listenup/common/util"
	"github.com/listenup/listenup/common/util/proc_lock"
	"github.com/listenup/listenup/common/version"
	"github.com/listenup/listenup/worker/app"
)

func main() {
	fmt.Printf("ListenUp Worker v%s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	lockFile, err := proc_lock.CreateLockFile(proc_lock.WorkerLockFile(config.Service.String()))
	if err != nil {
		log.Fatalf("Error: Another %s worker is currently running on this host", config.Service)
	}
	defer lockFile.Close()

	worker, cleanup, err := app.New(ctx, config)
	if err != nil {
		log.Fatalf("Error creating worker: %s", err)
	}
	defer cleanup()

	worker.Start()
	defer worker.Stop()
	<-ctx.Done()
}
