package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/lcdgauge/cmd/lcdgauge/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.WithField("signal", sig).Info("shutting down")
		cancel()
		// Failsafe if shutdown deadlocks
		<-time.After(15 * time.Second)
		logrus.Fatal("shutdown took too long, exiting")
	}()

	os.Exit(cmd.Execute(ctx))
}
