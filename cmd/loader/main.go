package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/components"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/loader"
	"github.com/pyropy/chunkloader/lib/logger"
	loaderRPC "github.com/pyropy/chunkloader/rpc/loader"
	"go.uber.org/multierr"
)

var log, _ = logger.New("loader-rpc")

func main() {
	if err := run(); err != nil {
		log.Fatalw("startup", "ERROR", err)
	}
}

func openLedger(cfg *Config) (*ledger.Store, error) {
	if cfg.Ledger.Path == "" {
		log.Warnw("startup", "status", "LEDGER_PATH not set, ledger kept in memory")
		return ledger.NewMemoryStore(cfg.LedgerRent()), nil
	}

	return ledger.OpenLevelDB(cfg.Ledger.Path, cfg.LedgerRent())
}

func newAPI(cfg *Config, store *ledger.Store) (*API, error) {
	runtime := host.NewRuntime(store)

	l := loader.New(runtime, loader.WithMaxChunkLen(cfg.Loader.MaxChunkLen))

	err := components.RegisterDefaults(runtime)
	if err != nil {
		return nil, err
	}

	return NewLoaderAPI(runtime, l, cfg), nil
}

func run() (err error) {
	cfg, err := GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	store, err := openLedger(cfg)
	if err != nil {
		log.Errorw("startup", "error", "failed to open ledger", "path", cfg.Ledger.Path)
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	api, err := newAPI(cfg, store)
	if err != nil {
		return err
	}

	err = rpc.RegisterName(loaderRPC.ServiceName, api)
	if err != nil {
		return err
	}
	rpc.HandleHTTP()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}
	defer func() {
		err = multierr.Append(err, ignoreClosed(l.Close()))
	}()

	listenAddr := l.Addr().String()

	log.Infow("startup", "status", "loader rpc server started", "address", listenAddr, "program", loader.ProgramID, "faucet", cfg.Faucet.Enabled)
	defer log.Infow("shutdown", "status", "loader rpc server stopped", "address", listenAddr)
	go http.Serve(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start logging ledger usage
	monitor := host.NewLedgerMonitor(store, cfg.Ledger.MonitorInterval)
	go monitor.Start(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Infow("shutdown", "status", "loader rpc server stopping", "address", listenAddr)

	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}
