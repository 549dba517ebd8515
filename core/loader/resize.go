package loader

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
)

// InitOrReallocWithOwner behaves like InitOrRealloc, but when the account
// already exists the 32 bytes after its type tag must equal owner. Every
// record written this way must therefore keep its owner as the first field.
func InitOrReallocWithOwner(
	ctx context.Context,
	tx *ledger.Tx,
	component, account model.Address,
	space int,
	owner model.Address,
	record model.Record,
	payer model.Address,
	seeds address.SignerSeeds,
	reclaim bool,
) error {
	acc, err := tx.Account(ctx, account)
	if err != nil {
		return err
	}

	if len(acc.Data) > 0 {
		existing, err := model.ReadOwner(acc.Data)
		if err != nil {
			return err
		}
		if existing != owner {
			return errors.Wrapf(ErrOwnershipMismatch, "%s belongs to %s, not %s", account, existing, owner)
		}
	}

	return InitOrRealloc(ctx, tx, component, account, space, record, payer, seeds, reclaim)
}

// InitOrRealloc creates account with space bytes when it has no data yet,
// otherwise resizes it to space. The tagged record is then written over the
// whole account.
func InitOrRealloc(
	ctx context.Context,
	tx *ledger.Tx,
	component, account model.Address,
	space int,
	record model.Record,
	payer model.Address,
	seeds address.SignerSeeds,
	reclaim bool,
) error {
	encoded, err := model.Encode(record)
	if err != nil {
		return err
	}
	if len(encoded) > space {
		return errors.Wrapf(ledger.ErrAccountDataTooSmall, "%s: record needs %d bytes, space is %d", account, len(encoded), space)
	}

	acc, err := tx.Account(ctx, account)
	if err != nil {
		return err
	}

	if len(acc.Data) == 0 {
		err = tx.CreateAccount(ctx, component, payer, account, space, &seeds)
	} else {
		err = Realloc(ctx, tx, component, account, payer, space, reclaim)
	}
	if err != nil {
		return err
	}

	data := make([]byte, space)
	copy(data, encoded)

	return tx.WriteData(ctx, component, account, 0, data)
}

// Realloc resizes account and settles the storage cost difference with payer.
// When shrinking, excess lamports go back to payer only if reclaim is set.
func Realloc(ctx context.Context, tx *ledger.Tx, component, account, payer model.Address, space int, reclaim bool) error {
	acc, err := tx.Account(ctx, account)
	if err != nil {
		return err
	}

	required := tx.Rent().MinimumBalance(space)
	if err := tx.Realloc(ctx, component, account, space); err != nil {
		return err
	}

	switch {
	case required > acc.Lamports:
		return tx.Transfer(ctx, payer, account, required-acc.Lamports)
	case reclaim && required < acc.Lamports:
		return tx.Move(ctx, component, account, payer, acc.Lamports-required)
	}

	return nil
}
