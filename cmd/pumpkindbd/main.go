// Command pumpkindbd is the PumpkinDB server: it loads configuration,
// opens storage and the HLC scratchpad, wires the instruction dispatcher,
// and serves the wire protocol over TCP.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/pumpkindb/pumpkindb/internal/config"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/binaries"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/core"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/hashfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/hlcfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/jsonfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/msgfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/numbers"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/queue"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/stackfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/storagefam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/stringfam"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/uuidfam"
	"github.com/pumpkindb/pumpkindb/internal/hlc"
	"github.com/pumpkindb/pumpkindb/internal/pubsub"
	"github.com/pumpkindb/pumpkindb/internal/scheduler"
	"github.com/pumpkindb/pumpkindb/internal/storage"
	"github.com/pumpkindb/pumpkindb/internal/wire"
)

var optConfig = flag.String("config", "pumpkindb.toml", "path to the TOML configuration file")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Error().Err(err).Msg("pumpkindbd exiting")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*optConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	nvmemPath := cfg.Storage.Path + ".hlc"
	nvmem, err := hlc.OpenFileNVMem(nvmemPath)
	if err != nil {
		return fmt.Errorf("opening HLC scratchpad %s: %w", nvmemPath, err)
	}
	defer nvmem.Close()

	oracle := hlc.New(nvmem, nodeTag(), hlc.WithLogger(log.Logger))
	engine := storage.New(storage.WithMaxReaders(maxReaders(cfg)))
	broker := pubsub.New(pubsub.WithLogger(log.Logger))

	disp := dispatch.New(
		core.New(),
		stackfam.New(),
		queue.New(),
		binaries.New(),
		numbers.New(),
		storagefam.New(engine),
		hashfam.New(),
		hlcfam.New(oracle),
		jsonfam.New(),
		msgfam.New(broker),
		uuidfam.New(),
		stringfam.New(),
	)

	pool := scheduler.New(disp, scheduler.WithLogger(log.Logger))
	defer pool.Stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()

	log.Info().
		Str("addr", addr).
		Str("storage", cfg.Storage.Path).
		Msg("pumpkindbd listening")

	serveErr := make(chan error, 1)
	go func() { serveErr <- wire.Serve(ln, pool, log.Logger) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		ln.Close()
		return nil
	}
}

// maxReaders falls back to the engine's own default when the config key is
// left at its zero value (not set in the file or env).
func maxReaders(cfg config.Config) int {
	if cfg.Storage.MaxReaders <= 0 {
		return 126
	}
	return cfg.Storage.MaxReaders
}

// nodeTag derives a per-process HLC tie-breaker from the pid, good enough
// for a single-node deployment; a clustered deployment would assign a
// stable node id instead.
func nodeTag() uint32 {
	return uint32(os.Getpid())
}
