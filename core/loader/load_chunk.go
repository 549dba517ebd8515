package loader

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
)

// LoadChunk appends chunk to the record derived from (owner, handleID),
// creating the record on first use. owner signs and pays for the storage.
func (l *Loader) LoadChunk(ctx context.Context, tx *ledger.Tx, owner model.Address, handleID uint32, chunk model.Chunk) (model.Address, error) {
	if err := requireSigner(tx, owner); err != nil {
		return model.Address{}, err
	}
	if l.maxChunkLen > 0 && len(chunk.Data) > l.maxChunkLen {
		return model.Address{}, errors.Wrapf(ErrChunkTooLarge, "chunk %d holds %d bytes, limit is %d", chunk.Index, len(chunk.Data), l.maxChunkLen)
	}

	seeds := address.ChunkHolderSeeds(owner, handleID)
	holderAddr, nonce, err := address.FindAddress(seeds, l.ID)
	if err != nil {
		return model.Address{}, err
	}

	acc, err := tx.Account(ctx, holderAddr)
	if err != nil {
		return model.Address{}, err
	}

	var (
		space  int
		holder *model.ChunkHolder
	)
	if len(acc.Data) == 0 {
		space = model.HeaderSpace + chunk.Space()
		holder = model.NewChunkHolder(owner, chunk)
	} else {
		holder, err = l.decode(holderAddr, acc)
		if err != nil {
			return model.Address{}, err
		}
		if holder.HasIndex(chunk.Index) {
			return model.Address{}, errors.Wrapf(ErrDuplicateIndex, "handle %d, index %d", handleID, chunk.Index)
		}
		holder.Chunks = append(holder.Chunks, chunk)
		space = len(acc.Data) + chunk.Space()
	}

	err = InitOrReallocWithOwner(
		ctx,
		tx,
		l.ID,
		holderAddr,
		space,
		owner,
		holder,
		owner,
		address.SignerSeeds{Seeds: seeds, Nonce: nonce},
		false,
	)
	if err != nil {
		return model.Address{}, errors.Wrapf(err, "load chunk %d into handle %d", chunk.Index, handleID)
	}

	return holderAddr, nil
}
