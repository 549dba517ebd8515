package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/client"
	"github.com/pyropy/chunkloader/core/components"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/urfave/cli/v2"
)

var (
	ErrInvalidAccountMeta = errors.New("account must look like ADDRESS[,signer][,writable]")
	ErrHandleOutOfRange   = errors.New("handle does not fit in 32 bits")
)

func newClient(ctx *cli.Context) (*client.Client, error) {
	key, err := client.LoadKey(ctx.String("key"))
	if err != nil {
		return nil, err
	}

	cfg := &client.Config{MaxChunkLen: ctx.Int("max-chunk-len")}
	cfg.Loader.Addr = ctx.String("rpc-url")
	cfg.Store.Path = ctx.String("store")

	return client.NewClient(cfg, key)
}

// parseAccountMeta reads ADDRESS[,signer][,writable].
func parseAccountMeta(s string) (model.AccountMeta, error) {
	parts := strings.Split(s, ",")

	addr, err := model.ParseAddress(parts[0])
	if err != nil {
		return model.AccountMeta{}, errors.Wrapf(ErrInvalidAccountMeta, "%q: %v", s, err)
	}

	meta := model.AccountMeta{Address: addr}
	for _, flag := range parts[1:] {
		switch flag {
		case "signer":
			meta.IsSigner = true
		case "writable":
			meta.IsWritable = true
		default:
			return model.AccountMeta{}, errors.Wrapf(ErrInvalidAccountMeta, "%q: unknown flag %q", s, flag)
		}
	}

	return meta, nil
}

func parseHandle(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, errors.Wrapf(ErrHandleOutOfRange, "%d", v)
	}

	return uint32(v), nil
}

func handleArg(ctx *cli.Context) (uint32, error) {
	return parseHandle(ctx.Uint64("handle"))
}

func chunkHolderArg(ctx *cli.Context, c *client.Client) (model.Address, error) {
	if ctx.IsSet("chunk-holder") {
		return model.ParseAddress(ctx.String("chunk-holder"))
	}

	handle, err := handleArg(ctx)
	if err != nil {
		return model.Address{}, err
	}

	return c.FindChunkHolder(handle)
}

var chunkHolderFlags = []cli.Flag{
	&cli.Uint64Flag{
		Name:  "handle",
		Usage: "Handle id the payload was uploaded under",
	},
	&cli.StringFlag{
		Name:  "chunk-holder",
		Usage: "Record address, overrides --handle",
	},
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "Create a new signing key",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite an existing key",
		},
	},
	Action: func(ctx *cli.Context) error {
		path := ctx.String("key")
		if _, err := os.Stat(path); err == nil && !ctx.Bool("force") {
			return errors.Errorf("key %s already exists", path)
		}

		key, err := client.GenerateKey()
		if err != nil {
			return err
		}

		err = client.SaveKey(path, key)
		if err != nil {
			return err
		}

		fmt.Println(client.PublicAddress(key))
		return nil
	},
}

var airdropCmd = &cli.Command{
	Name:  "airdrop",
	Usage: "Request lamports from the dev faucet",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "lamports",
			Required: true,
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		balance, err := c.Airdrop(ctx.Uint64("lamports"))
		if err != nil {
			return err
		}

		fmt.Println(balance)
		return nil
	},
}

var balanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "Show lamports held by an address, defaults to your own",
	ArgsUsage: "[ADDRESS]",
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		addr := c.Owner()
		if ctx.Args().Present() {
			addr, err = model.ParseAddress(ctx.Args().First())
			if err != nil {
				return err
			}
		}

		balance, err := c.GetBalance(addr)
		if err != nil {
			return err
		}

		fmt.Println(balance)
		return nil
	},
}

var findCmd = &cli.Command{
	Name:  "find",
	Usage: "Print the record address for a handle",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:     "handle",
			Required: true,
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		handle, err := handleArg(ctx)
		if err != nil {
			return err
		}

		addr, err := c.FindChunkHolder(handle)
		if err != nil {
			return err
		}

		fmt.Println(addr)
		return nil
	},
}

var loadCmd = &cli.Command{
	Name:  "load",
	Usage: "Upload a file in chunks",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file-path",
			Required: true,
			Usage:    "Path to the payload",
		},
		&cli.Uint64Flag{
			Name:     "handle",
			Required: true,
			Usage:    "Handle id to upload under",
		},
		&cli.IntFlag{
			Name:  "chunk-len",
			Usage: "Bytes per chunk, defaults to --max-chunk-len",
		},
	},
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		data, err := os.ReadFile(ctx.String("file-path"))
		if err != nil {
			return err
		}

		handle, err := handleArg(ctx)
		if err != nil {
			return err
		}

		upload, err := c.LoadByChunks(ctx.Context, handle, data, ctx.Int("chunk-len"))
		if err != nil {
			return err
		}

		log.Infow("load", "chunkHolder", upload.ChunkHolder, "chunks", upload.Chunks, "length", upload.Length, "digest", upload.Digest)
		fmt.Println(upload.ChunkHolder)
		return nil
	},
}

var dispatchCmd = &cli.Command{
	Name:  "dispatch",
	Usage: "Forward an uploaded payload to a component and close its record",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "program",
			Value: components.MemoProgram.String(),
			Usage: "Component receiving the payload",
		},
		&cli.StringSliceFlag{
			Name:  "account",
			Usage: "Account forwarded to the component, ADDRESS[,signer][,writable]",
		},
		&cli.IntFlag{
			Name:  "expected-length",
			Value: -1,
			Usage: "Required payload length, defaults to the tracked upload length",
		},
	}, chunkHolderFlags...),
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		chunkHolder, err := chunkHolderArg(ctx, c)
		if err != nil {
			return err
		}

		program, err := model.ParseAddress(ctx.String("program"))
		if err != nil {
			return err
		}

		accounts := make([]model.AccountMeta, 0)
		for _, s := range ctx.StringSlice("account") {
			meta, err := parseAccountMeta(s)
			if err != nil {
				return err
			}
			accounts = append(accounts, meta)
		}

		var expectedLen *uint16
		switch n := ctx.Int("expected-length"); {
		case n >= 0:
			l := uint16(n)
			expectedLen = &l
		default:
			upload, err := c.UploadStore.Get(ctx.Context, chunkHolder)
			if err == nil && upload.Length <= math.MaxUint16 {
				l := uint16(upload.Length)
				expectedLen = &l
			}
		}

		reply, err := c.PassToCPI(ctx.Context, chunkHolder, program, accounts, expectedLen)
		if err != nil {
			return err
		}

		log.Infow("dispatch", "chunkHolder", chunkHolder, "program", program, "length", reply.Length, "digest", reply.Digest, "refund", reply.Refund)
		return nil
	},
}

var closeCmd = &cli.Command{
	Name:  "close",
	Usage: "Abandon an upload and reclaim its lamports",
	Flags: chunkHolderFlags,
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		chunkHolder, err := chunkHolderArg(ctx, c)
		if err != nil {
			return err
		}

		refund, err := c.CloseChunks(ctx.Context, chunkHolder)
		if err != nil {
			return err
		}

		log.Infow("close", "chunkHolder", chunkHolder, "refund", refund)
		return nil
	},
}

var showCmd = &cli.Command{
	Name:  "show",
	Usage: "Show the chunks loaded into a record",
	Flags: chunkHolderFlags,
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		chunkHolder, err := chunkHolderArg(ctx, c)
		if err != nil {
			return err
		}

		holder, err := c.FetchChunkHolder(chunkHolder)
		if err != nil {
			return err
		}
		if holder == nil {
			fmt.Println("no record at", chunkHolder)
			return nil
		}

		fmt.Println("owner", holder.Owner, "space", holder.Space(), "length", holder.DataLen())
		for _, idx := range holder.Indices() {
			fmt.Println("chunk", idx)
		}

		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List uploads made from this machine",
	Action: func(ctx *cli.Context) error {
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		uploads, err := c.UploadStore.All(ctx.Context)
		if err != nil {
			return err
		}

		for _, u := range uploads {
			fmt.Println(u.ChunkHolder, u.HandleID, u.Length, u.Chunks, u.Dispatched, u.CreatedAt.Format("2006-01-02T15:04:05Z"))
		}

		return nil
	},
}
