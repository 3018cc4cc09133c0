// haptic device simulator.
//
// hapticsim runs one or more simulated haptic devices speaking the
// device protocol hapticd's transports expect: POST /pattern,
// POST /stop, GET /status over HTTP and pattern/command frames over
// the /ws WebSocket. Useful for development and integration testing
// without hardware.
//
// Each additional device (-count) listens on the next port up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/devicesim"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/config"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/logging"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hapticsim", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "listen address")
	port := fs.Int("port", 8000, "listen port for the first device")
	count := fs.Int("count", 1, "number of simulated devices (consecutive ports)")
	tickMS := fs.Int("tick", 10, "playback tick interval in milliseconds")
	pushSec := fs.Int("push", 5, "unsolicited status push interval in seconds")
	maxSteps := fs.Int("max-steps", 32, "maximum pattern steps accepted")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	log := logging.New(config.LoggingConfig{
		Level:  *logLevel,
		Format: "text",
		Output: "stdout",
	}, version)

	sims := make([]*devicesim.Simulator, 0, *count)
	for i := 0; i < *count; i++ {
		sim := devicesim.New(devicesim.Config{
			Host:            *host,
			Port:            *port + i,
			TickInterval:    time.Duration(*tickMS) * time.Millisecond,
			PushInterval:    time.Duration(*pushSec) * time.Second,
			MaxPatternSteps: *maxSteps,
		})
		sim.SetLogger(log)
		sim.SetActuator(devicesim.NewLogActuator(log))

		if err := sim.Start(ctx); err != nil {
			return fmt.Errorf("starting device on port %d: %w", *port+i, err)
		}
		sims = append(sims, sim)
	}

	log.Info("simulated devices running", "count", *count, "first_port", *port)

	<-ctx.Done()

	log.Info("shutting down")
	for _, sim := range sims {
		if err := sim.Close(); err != nil {
			log.Error("error closing device", "error", err)
		}
	}
	return nil
}
