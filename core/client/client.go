// Package client talks to the loader service and tracks uploads locally.
package client

import (
	"context"
	"crypto/ed25519"
	"net/rpc"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/checksum"
	"github.com/pyropy/chunkloader/lib/logger"
	loaderRPC "github.com/pyropy/chunkloader/rpc/loader"
	"go.uber.org/multierr"
)

var log, _ = logger.New("client")

// MaxChunkLen is the largest chunk that fits a single request.
const MaxChunkLen = 943

// maxChunks is bounded by the one byte chunk index.
const maxChunks = 256

var (
	ErrEmptyPayload    = errors.New("payload is empty")
	ErrTooManyChunks   = errors.New("payload needs more than 256 chunks")
	ErrInvalidChunkLen = errors.New("chunk length must be positive")
)

type Client struct {
	*UploadStore

	RpcClient   *rpc.Client
	Key         ed25519.PrivateKey
	MaxChunkLen int
}

func NewClient(cfg *Config, key ed25519.PrivateKey) (*Client, error) {
	rpcClient, err := rpc.DialHTTP("tcp", cfg.Loader.Addr)
	if err != nil {
		return nil, err
	}

	uploads, err := NewUploadStore(cfg.Store.Path)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return &Client{
		UploadStore: uploads,
		RpcClient:   rpcClient,
		Key:         key,
		MaxChunkLen: cfg.MaxChunkLen,
	}, nil
}

func (c *Client) Owner() model.Address {
	return PublicAddress(c.Key)
}

func (c *Client) call(method string, args, reply any) error {
	err := c.RpcClient.Call(loaderRPC.ServiceName+"."+method, args, reply)
	return loaderRPC.FromServerError(err)
}

func (c *Client) signedCall(method string, args loaderRPC.Signed, reply any) error {
	if err := loaderRPC.Sign(method, args, c.Key); err != nil {
		return err
	}

	return c.call(method, args, reply)
}

// SplitChunks cuts data into sequentially indexed chunks of at most
// chunkLen bytes.
func SplitChunks(data []byte, chunkLen int) ([]model.Chunk, error) {
	if chunkLen <= 0 {
		return nil, ErrInvalidChunkLen
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	n := (len(data) + chunkLen - 1) / chunkLen
	if n > maxChunks {
		return nil, errors.Wrapf(ErrTooManyChunks, "%d bytes in chunks of %d", len(data), chunkLen)
	}

	chunks := make([]model.Chunk, 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * chunkLen
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, model.Chunk{
			Index: uint8(i),
			Data:  data[i*chunkLen : end],
		})
	}

	return chunks, nil
}

func (c *Client) LoadChunk(handleID uint32, chunk model.Chunk) (*loaderRPC.LoadChunkReply, error) {
	args := &loaderRPC.LoadChunkArgs{
		HandleID: handleID,
		Chunk:    chunk,
	}
	var reply loaderRPC.LoadChunkReply

	err := c.signedCall("LoadChunk", args, &reply)
	if err != nil {
		return nil, err
	}

	return &reply, nil
}

// LoadByChunks uploads data under handleID in chunks of at most chunkLen
// bytes and records the upload locally. chunkLen of zero uses the configured
// maximum.
func (c *Client) LoadByChunks(ctx context.Context, handleID uint32, data []byte, chunkLen int) (*model.Upload, error) {
	if chunkLen == 0 {
		chunkLen = c.MaxChunkLen
	}

	chunks, err := SplitChunks(data, chunkLen)
	if err != nil {
		return nil, err
	}

	var chunkHolder model.Address
	for _, chunk := range chunks {
		reply, err := c.LoadChunk(handleID, chunk)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d", chunk.Index)
		}
		chunkHolder = reply.ChunkHolder

		log.Infow("LoadByChunks", "chunkHolder", chunkHolder, "index", chunk.Index, "space", reply.Space)
	}

	upload := model.NewUpload(c.Owner(), handleID, chunkHolder)
	upload.Length = len(data)
	upload.Chunks = len(chunks)
	upload.Digest = checksum.Digest(data)

	err = c.UploadStore.Put(ctx, upload)
	if err != nil {
		return nil, err
	}

	return &upload, nil
}

func (c *Client) PassToCPI(ctx context.Context, chunkHolder, program model.Address, accounts []model.AccountMeta, expectedLen *uint16) (*loaderRPC.PassToCPIReply, error) {
	args := &loaderRPC.PassToCPIArgs{
		ChunkHolder: chunkHolder,
		Program:     program,
		Accounts:    accounts,
	}
	args.SetExpectedLength(expectedLen)
	var reply loaderRPC.PassToCPIReply

	err := c.signedCall("PassToCPI", args, &reply)
	if err != nil {
		return nil, err
	}

	c.markDispatched(ctx, chunkHolder)

	return &reply, nil
}

func (c *Client) CloseChunks(ctx context.Context, chunkHolder model.Address) (uint64, error) {
	args := &loaderRPC.CloseChunksArgs{ChunkHolder: chunkHolder}
	var reply loaderRPC.CloseChunksReply

	err := c.signedCall("CloseChunks", args, &reply)
	if err != nil {
		return 0, err
	}

	c.forget(ctx, chunkHolder)

	return reply.Refund, nil
}

// FetchChunkHolder returns nil when no record exists at chunkHolder.
func (c *Client) FetchChunkHolder(chunkHolder model.Address) (*model.ChunkHolder, error) {
	args := &loaderRPC.FetchChunkHolderArgs{ChunkHolder: chunkHolder}
	var reply loaderRPC.FetchChunkHolderReply

	err := c.call("FetchChunkHolder", args, &reply)
	if err != nil {
		return nil, err
	}
	if !reply.Exists {
		return nil, nil
	}

	return &model.ChunkHolder{Owner: reply.Owner, Chunks: reply.Chunks}, nil
}

func (c *Client) FindChunkHolder(handleID uint32) (model.Address, error) {
	args := &loaderRPC.FindChunkHolderArgs{Owner: c.Owner(), HandleID: handleID}
	var reply loaderRPC.FindChunkHolderReply

	err := c.call("FindChunkHolder", args, &reply)
	if err != nil {
		return model.Address{}, err
	}

	return reply.ChunkHolder, nil
}

func (c *Client) Airdrop(lamports uint64) (uint64, error) {
	args := &loaderRPC.AirdropArgs{Lamports: lamports}
	var reply loaderRPC.AirdropReply

	err := c.signedCall("Airdrop", args, &reply)
	if err != nil {
		return 0, err
	}

	return reply.Lamports, nil
}

func (c *Client) GetBalance(addr model.Address) (uint64, error) {
	args := &loaderRPC.GetBalanceArgs{Address: addr}
	var reply loaderRPC.GetBalanceReply

	err := c.call("GetBalance", args, &reply)
	if err != nil {
		return 0, err
	}

	return reply.Lamports, nil
}

func (c *Client) Close() error {
	return multierr.Combine(c.RpcClient.Close(), c.UploadStore.Close())
}

// markDispatched keeps the upload in the local history once its record is gone.
func (c *Client) markDispatched(ctx context.Context, chunkHolder model.Address) {
	upload, err := c.UploadStore.Get(ctx, chunkHolder)
	if errors.Is(err, ErrUploadNotFound) {
		return
	}
	if err == nil {
		upload.Dispatched = true
		err = c.UploadStore.Put(ctx, *upload)
	}
	if err != nil {
		log.Warnw("mark upload dispatched", "chunkHolder", chunkHolder, "err", err)
	}
}

// forget drops local tracking for a record that no longer exists on the server.
func (c *Client) forget(ctx context.Context, chunkHolder model.Address) {
	err := c.UploadStore.Delete(ctx, chunkHolder)
	if err != nil {
		log.Warnw("forget upload", "chunkHolder", chunkHolder, "err", err)
	}
}
