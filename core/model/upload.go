package model

import (
	"time"

	"github.com/google/uuid"
)

// Upload is the client side bookkeeping for one chunked payload.
type Upload struct {
	ID          uuid.UUID
	Owner       Address
	HandleID    uint32
	ChunkHolder Address
	Length      int
	Chunks      int
	Digest      string
	CreatedAt   time.Time
	Dispatched  bool
}

func NewUpload(owner Address, handleID uint32, chunkHolder Address) Upload {
	return Upload{
		ID:          uuid.New(),
		Owner:       owner,
		HandleID:    handleID,
		ChunkHolder: chunkHolder,
		CreatedAt:   time.Now().UTC(),
	}
}
