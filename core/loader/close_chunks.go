package loader

import (
	"context"

	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
)

// CloseChunks destroys an abandoned record without forwarding it and returns
// the refunded lamports.
func (l *Loader) CloseChunks(ctx context.Context, tx *ledger.Tx, owner, chunkHolder model.Address) (uint64, error) {
	if err := requireSigner(tx, owner); err != nil {
		return 0, err
	}

	holder, acc, err := l.loadChunkHolder(ctx, tx, chunkHolder)
	if err != nil {
		return 0, err
	}
	if err := requireOwner(holder, chunkHolder, owner); err != nil {
		return 0, err
	}

	if err := tx.CloseAccount(ctx, l.ID, chunkHolder, owner); err != nil {
		return 0, err
	}

	return acc.Lamports, nil
}
