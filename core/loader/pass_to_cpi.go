package loader

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/checksum"
)

// Dispatch describes a payload that was forwarded and the record it came from.
type Dispatch struct {
	ChunkHolder model.Address
	Program     model.Address
	Length      int
	Chunks      int
	Digest      string
	Refund      uint64
}

// PassToCPI reassembles the record at chunkHolder and forwards it to program
// together with accounts. When expectedLen is set the reassembled length must
// match it exactly. On success the record is closed and its lamports go back
// to owner; a downstream failure is returned unchanged.
func (l *Loader) PassToCPI(
	ctx context.Context,
	tx *ledger.Tx,
	owner, chunkHolder, program model.Address,
	accounts []model.AccountMeta,
	expectedLen *uint16,
) (*Dispatch, error) {
	if err := requireSigner(tx, owner); err != nil {
		return nil, err
	}

	holder, acc, err := l.loadChunkHolder(ctx, tx, chunkHolder)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(holder, chunkHolder, owner); err != nil {
		return nil, err
	}

	if expectedLen != nil {
		if actual := holder.DataLen(); actual != int(*expectedLen) {
			return nil, errors.Wrapf(ErrDataLengthMismatch, "chunk holder %s: expected %d bytes, chunks hold %d", chunkHolder, *expectedLen, actual)
		}
	}

	data := holder.JoinChunks()
	ix := host.Instruction{
		Program:  program,
		Accounts: accounts,
		Data:     data,
	}
	if err := l.invoker.Invoke(ctx, tx, ix); err != nil {
		return nil, err
	}

	// the component may have credited the record
	acc, err = tx.Account(ctx, chunkHolder)
	if err != nil {
		return nil, err
	}
	if err := tx.CloseAccount(ctx, l.ID, chunkHolder, owner); err != nil {
		return nil, err
	}

	return &Dispatch{
		ChunkHolder: chunkHolder,
		Program:     program,
		Length:      len(data),
		Chunks:      len(holder.Chunks),
		Digest:      checksum.Digest(data),
		Refund:      acc.Lamports,
	}, nil
}
