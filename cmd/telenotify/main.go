package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telenotify/internal/app"
	"telenotify/internal/config"
)

func main() {
	var (
		cfgPath string
		envPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with "+config.EnvToken+"/"+config.EnvChatID)
	flag.Parse()

	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Println("fatal: dotenv:", err)
		os.Exit(1)
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopUnknown
loop:
	for {
		select {
		case <-a.Done():
			reason = app.StopFatalError
			break loop
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				rctx, rcancel := context.WithTimeout(ctx, 10*time.Second)
				_ = a.ReloadFromSignal(rctx, "SIGHUP")
				rcancel()
			case syscall.SIGTERM:
				reason = app.StopSIGTERM
				break loop
			default:
				reason = app.StopSIGINT
				break loop
			}
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Println("stop:", err)
	}
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Println("fatal:", err)
		}
		os.Exit(1)
	}
}
