package model

import (
	"bytes"
	"sort"

	"github.com/pyropy/chunkloader/lib/utils"
)

const (
	// ChunkHolderTag is the type tag written before every encoded ChunkHolder.
	ChunkHolderTag byte = 1
	TagLen              = 1

	lenPrefix = 4

	// HeaderSpace is the storage taken by a ChunkHolder with no chunks.
	HeaderSpace = TagLen + AddressLen + lenPrefix
)

type Chunk struct {
	Index uint8
	Data  []byte
}

// Space is the encoded size of the chunk inside a ChunkHolder.
func (c Chunk) Space() int {
	return 1 + lenPrefix + len(c.Data)
}

// ChunkHolder accumulates chunks for one (owner, handle) pair.
type ChunkHolder struct {
	Owner  Address
	Chunks []Chunk
}

func NewChunkHolder(owner Address, chunks ...Chunk) *ChunkHolder {
	return &ChunkHolder{
		Owner:  owner,
		Chunks: chunks,
	}
}

// Space is the exact storage needed for the tagged encoding of h.
func (h *ChunkHolder) Space() int {
	return HeaderSpace + utils.SumBy(h.Chunks, Chunk.Space)
}

// DataLen is the length of the reassembled payload.
func (h *ChunkHolder) DataLen() int {
	return utils.SumBy(h.Chunks, func(c Chunk) int { return len(c.Data) })
}

func (h *ChunkHolder) HasIndex(index uint8) bool {
	for _, c := range h.Chunks {
		if c.Index == index {
			return true
		}
	}

	return false
}

func (h *ChunkHolder) Indices() []uint8 {
	indices := make([]uint8, 0, len(h.Chunks))
	for _, c := range h.Chunks {
		indices = append(indices, c.Index)
	}

	return indices
}

// JoinChunks orders the chunks by index and concatenates their data.
func (h *ChunkHolder) JoinChunks() []byte {
	sort.SliceStable(h.Chunks, func(i, j int) bool {
		return h.Chunks[i].Index < h.Chunks[j].Index
	})

	var buf bytes.Buffer
	buf.Grow(h.DataLen())
	for _, c := range h.Chunks {
		buf.Write(c.Data)
	}

	return buf.Bytes()
}
