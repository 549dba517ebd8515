package loader

import (
	"github.com/pyropy/chunkloader/core/model"
)

const ServiceName = "LoaderAPI"

type LoadChunkArgs struct {
	Auth     Auth
	HandleID uint32
	Chunk    model.Chunk
}

type LoadChunkReply struct {
	ChunkHolder model.Address
	Space       int
	Lamports    uint64
}

// PassToCPIArgs carries the optional expected length as a flag and a value
// since gob does not transmit a pointer to a zero value.
type PassToCPIArgs struct {
	Auth           Auth
	ChunkHolder    model.Address
	Program        model.Address
	Accounts       []model.AccountMeta
	CheckLength    bool
	ExpectedLength uint16
}

func (a *PassToCPIArgs) SetExpectedLength(n *uint16) {
	a.CheckLength = n != nil
	a.ExpectedLength = 0
	if n != nil {
		a.ExpectedLength = *n
	}
}

func (a *PassToCPIArgs) Expected() *uint16 {
	if !a.CheckLength {
		return nil
	}
	n := a.ExpectedLength
	return &n
}

type PassToCPIReply struct {
	Length int
	Chunks int
	Digest string
	Refund uint64
}

type CloseChunksArgs struct {
	Auth        Auth
	ChunkHolder model.Address
}

type CloseChunksReply struct {
	Refund uint64
}

type FetchChunkHolderArgs struct {
	ChunkHolder model.Address
}

type FetchChunkHolderReply struct {
	Exists   bool
	Owner    model.Address
	Chunks   []model.Chunk
	Space    int
	Lamports uint64
}

type FindChunkHolderArgs struct {
	Owner    model.Address
	HandleID uint32
}

type FindChunkHolderReply struct {
	ChunkHolder model.Address
}

type GetBalanceArgs struct {
	Address model.Address
}

type GetBalanceReply struct {
	Lamports uint64
}

type AirdropArgs struct {
	Auth     Auth
	Lamports uint64
}

type AirdropReply struct {
	Lamports uint64
}

type ILoader interface {
	LoadChunk(args *LoadChunkArgs, reply *LoadChunkReply) error
	PassToCPI(args *PassToCPIArgs, reply *PassToCPIReply) error
	CloseChunks(args *CloseChunksArgs, reply *CloseChunksReply) error
	FetchChunkHolder(args *FetchChunkHolderArgs, reply *FetchChunkHolderReply) error
	FindChunkHolder(args *FindChunkHolderArgs, reply *FindChunkHolderReply) error
	GetBalance(args *GetBalanceArgs, reply *GetBalanceReply) error
	Airdrop(args *AirdropArgs, reply *AirdropReply) error
}

func (a *LoadChunkArgs) GetAuth() *Auth   { return &a.Auth }
func (a *PassToCPIArgs) GetAuth() *Auth   { return &a.Auth }
func (a *CloseChunksArgs) GetAuth() *Auth { return &a.Auth }
func (a *AirdropArgs) GetAuth() *Auth     { return &a.Auth }

// gob drops empty slices, so both ends sign the nil form
func (a *LoadChunkArgs) normalize() {
	if len(a.Chunk.Data) == 0 {
		a.Chunk.Data = nil
	}
}

func (a *PassToCPIArgs) normalize() {
	if len(a.Accounts) == 0 {
		a.Accounts = nil
	}
}

func (a *CloseChunksArgs) normalize() {}

func (a *AirdropArgs) normalize() {}
