package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/loader"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/cache"
	rpc "github.com/pyropy/chunkloader/rpc/loader"
)

type API struct {
	runtime *host.Runtime
	loader  *loader.Loader
	replay  *cache.LRU[uuid.UUID, struct{}]
	maxAge  time.Duration
	faucet  FaucetConfig
}

var _ rpc.ILoader = (*API)(nil)

func NewLoaderAPI(runtime *host.Runtime, l *loader.Loader, cfg *Config) *API {
	return &API{
		runtime: runtime,
		loader:  l,
		replay:  cache.NewLRU[uuid.UUID, struct{}](cfg.Loader.ReplayCacheSize),
		maxAge:  cfg.Loader.RequestMaxAge,
		faucet:  cfg.Faucet,
	}
}

// authenticate verifies the request signature and freshness and burns its
// request id. The replay cache must hold every id accepted within maxAge.
func (a *API) authenticate(method string, args rpc.Signed) (model.Address, error) {
	signer, err := rpc.Verify(method, args)
	if err != nil {
		return model.Address{}, err
	}

	err = rpc.CheckFresh(args.GetAuth(), time.Now(), a.maxAge)
	if err != nil {
		return model.Address{}, err
	}

	requestID := args.GetAuth().RequestID
	if !a.replay.PutIfAbsent(requestID, struct{}{}) {
		return model.Address{}, errors.Wrapf(rpc.ErrReplayed, "%s", requestID)
	}

	return signer, nil
}

// LoadChunk ...
func (a *API) LoadChunk(args *rpc.LoadChunkArgs, reply *rpc.LoadChunkReply) error {
	log.Infow("rpc", "event", "LoaderAPI.LoadChunk", "handleID", args.HandleID, "index", args.Chunk.Index, "len", len(args.Chunk.Data))

	owner, err := a.authenticate("LoadChunk", args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	err = a.runtime.Execute(ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		chunkHolder, err := a.loader.LoadChunk(ctx, tx, owner, args.HandleID, args.Chunk)
		if err != nil {
			return err
		}

		acc, err := tx.Account(ctx, chunkHolder)
		if err != nil {
			return err
		}

		reply.ChunkHolder = chunkHolder
		reply.Space = len(acc.Data)
		reply.Lamports = acc.Lamports

		return nil
	})
	if err != nil {
		log.Errorw("rpc", "event", "LoaderAPI.LoadChunk", "owner", owner, "err", err)
		return err
	}

	return nil
}

// PassToCPI ...
func (a *API) PassToCPI(args *rpc.PassToCPIArgs, reply *rpc.PassToCPIReply) error {
	log.Infow("rpc", "event", "LoaderAPI.PassToCPI", "chunkHolder", args.ChunkHolder, "program", args.Program)

	owner, err := a.authenticate("PassToCPI", args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	err = a.runtime.Execute(ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		dispatch, err := a.loader.PassToCPI(ctx, tx, owner, args.ChunkHolder, args.Program, args.Accounts, args.Expected())
		if err != nil {
			return err
		}

		reply.Length = dispatch.Length
		reply.Chunks = dispatch.Chunks
		reply.Digest = dispatch.Digest
		reply.Refund = dispatch.Refund

		return nil
	})
	if err != nil {
		log.Errorw("rpc", "event", "LoaderAPI.PassToCPI", "owner", owner, "err", err)
		return err
	}

	return nil
}

// CloseChunks ...
func (a *API) CloseChunks(args *rpc.CloseChunksArgs, reply *rpc.CloseChunksReply) error {
	log.Infow("rpc", "event", "LoaderAPI.CloseChunks", "chunkHolder", args.ChunkHolder)

	owner, err := a.authenticate("CloseChunks", args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return a.runtime.Execute(ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		refund, err := a.loader.CloseChunks(ctx, tx, owner, args.ChunkHolder)
		if err != nil {
			return err
		}

		reply.Refund = refund
		return nil
	})
}

// FetchChunkHolder ...
func (a *API) FetchChunkHolder(args *rpc.FetchChunkHolderArgs, reply *rpc.FetchChunkHolderReply) error {
	log.Infow("rpc", "event", "LoaderAPI.FetchChunkHolder", "args", args)

	ctx := context.Background()
	store := a.runtime.Store()

	holder, err := a.loader.FetchChunkHolder(ctx, store, args.ChunkHolder)
	if err != nil {
		return err
	}
	if holder == nil {
		return nil
	}

	acc, err := store.Account(ctx, args.ChunkHolder)
	if err != nil {
		return err
	}

	reply.Exists = true
	reply.Owner = holder.Owner
	reply.Chunks = holder.Chunks
	reply.Space = len(acc.Data)
	reply.Lamports = acc.Lamports

	return nil
}

// FindChunkHolder ...
func (a *API) FindChunkHolder(args *rpc.FindChunkHolderArgs, reply *rpc.FindChunkHolderReply) error {
	log.Infow("rpc", "event", "LoaderAPI.FindChunkHolder", "args", args)

	chunkHolder, err := a.loader.FindChunkHolder(args.Owner, args.HandleID)
	if err != nil {
		return err
	}

	reply.ChunkHolder = chunkHolder
	return nil
}

// GetBalance ...
func (a *API) GetBalance(args *rpc.GetBalanceArgs, reply *rpc.GetBalanceReply) error {
	acc, err := a.runtime.Store().Account(context.Background(), args.Address)
	if err != nil {
		return err
	}

	reply.Lamports = acc.Lamports
	return nil
}

// Airdrop credits the signer from the faucet.
func (a *API) Airdrop(args *rpc.AirdropArgs, reply *rpc.AirdropReply) error {
	log.Infow("rpc", "event", "LoaderAPI.Airdrop", "lamports", args.Lamports)

	if !a.faucet.Enabled {
		return rpc.ErrFaucetDisabled
	}
	if args.Lamports > a.faucet.MaxLamports {
		return errors.Wrapf(rpc.ErrFaucetLimit, "requested %d, limit is %d", args.Lamports, a.faucet.MaxLamports)
	}

	signer, err := a.authenticate("Airdrop", args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return a.runtime.Execute(ctx, []model.Address{signer}, func(ctx context.Context, tx *ledger.Tx) error {
		if err := tx.Mint(ctx, signer, args.Lamports); err != nil {
			return err
		}

		acc, err := tx.Account(ctx, signer)
		if err != nil {
			return err
		}

		reply.Lamports = acc.Lamports
		return nil
	})
}
