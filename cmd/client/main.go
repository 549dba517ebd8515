package main

import (
	"os"

	"github.com/pyropy/chunkloader/core/client"
	"github.com/pyropy/chunkloader/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("cli")

func main() {
	cfg, err := client.LoadConfig()
	if err != nil {
		log.Fatalw("startup", "error", err)
	}

	app := &cli.App{
		Name:  "chunkloader",
		Usage: "upload payloads in chunks and forward them to a component",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rpc-url",
				Value: cfg.Loader.Addr,
				Usage: "Address of the loader rpc server",
			},
			&cli.StringFlag{
				Name:  "store",
				Value: cfg.Store.Path,
				Usage: "Directory holding local upload tracking",
			},
			&cli.StringFlag{
				Name:  "key",
				Value: cfg.Key.Path,
				Usage: "Path to the signing key",
			},
			&cli.IntFlag{
				Name:  "max-chunk-len",
				Value: cfg.MaxChunkLen,
				Usage: "Largest chunk sent in one request",
			},
		},
		Commands: []*cli.Command{
			keygenCmd,
			airdropCmd,
			balanceCmd,
			findCmd,
			loadCmd,
			dispatchCmd,
			closeCmd,
			showCmd,
			listCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalw("command failed", "error", err)
	}
}
