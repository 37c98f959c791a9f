// Spins up the chime server: a timer registry reachable over the RESP protocol.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nobletooth/chime/pkg/port"
	"github.com/nobletooth/chime/pkg/timer"
	"github.com/nobletooth/chime/pkg/utils"
)

var (
	printVersion = flag.Bool("print_version", false, "Print the version and exit.")
	variant      = flag.String("variant", "hashed_wheel",
		"Timer store variant: sorted_array/heap/wheel/hashed_wheel/hierarchical.")
	shards = flag.Int("shards", 0, "Number of registry shards; 0 runs a single unsharded registry.")
)

// newScheduler builds the scheduler selected by the -variant and -shards flags.
func newScheduler() (timer.Scheduler, error) {
	var newRegistry func() *timer.Registry
	switch *variant {
	case "sorted_array":
		newRegistry = timer.NewSortedArray
	case "heap":
		newRegistry = timer.NewHeap
	case "wheel":
		newRegistry = timer.NewWheel
	case "hashed_wheel":
		newRegistry = timer.NewHashedWheel
	case "hierarchical":
		newRegistry = timer.NewHierarchical
	default:
		return nil, fmt.Errorf("unknown timer variant %q", *variant)
	}
	if *shards > 0 {
		return timer.NewSharded(newRegistry, *shards), nil
	}
	return newRegistry(), nil
}

func main() {
	flag.Parse()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Chime build info.", utils.BuildAttrs()...)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	scheduler, err := newScheduler()
	if err != nil {
		slog.Error("Failed to build the timer scheduler.", "err", err)
		os.Exit(1)
	}
	if err := port.RunServer(ctx, port.NewBackend(scheduler)); err != nil {
		slog.Error("Chime server stopped.", "err", err)
		os.Exit(1)
	}
}
