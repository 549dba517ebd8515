package ledger

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/arena"
	"github.com/pyropy/chunkloader/lib/utils"
)

const (
	// MaxDataIncrease bounds how much one Realloc may grow an account.
	MaxDataIncrease = 10 * 1024
	MaxAccountSize  = 10 * 1024 * 1024
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMissingSignature    = errors.New("missing required signature")
	ErrAccountInUse        = errors.New("account already in use")
	ErrNotOwner            = errors.New("account not owned by component")
	ErrAccountDataTooSmall = errors.New("account data too small")
	ErrReallocTooLarge     = errors.New("account realloc exceeds limit")
	ErrRentNotExempt       = errors.New("account not rent exempt")
	ErrLamportsOverflow    = errors.New("lamport arithmetic overflow")
	ErrUnbalancedTx        = errors.New("transaction does not conserve lamports")
	ErrTxDone              = errors.New("transaction already finished")
)

// Tx is one unit of work over the ledger. Reads go through an overlay so
// nothing reaches the datastore until Commit, and Discard drops every change.
type Tx struct {
	*overlay

	store   *Store
	signers []model.Address
}

// overlay is the pending state shared by a tx and every view derived from it.
type overlay struct {
	accounts map[model.Address]*model.Account
	before   map[model.Address]uint64
	minted   uint64
	done     bool
}

func newTx(store *Store, signers []model.Address) *Tx {
	return &Tx{
		overlay: &overlay{
			accounts: make(map[model.Address]*model.Account),
			before:   make(map[model.Address]uint64),
		},
		store:   store,
		signers: utils.Unique(signers),
	}
}

// WithSigners returns a view of tx that shares its pending changes but is
// signed only by those of signers that already sign tx.
func (tx *Tx) WithSigners(signers []model.Address) *Tx {
	held := make([]model.Address, 0, len(signers))
	for _, s := range signers {
		if tx.IsSigner(s) {
			held = append(held, s)
		}
	}

	return &Tx{
		overlay: tx.overlay,
		store:   tx.store,
		signers: utils.Unique(held),
	}
}

func (tx *Tx) Signers() []model.Address {
	return append([]model.Address(nil), tx.signers...)
}

func (tx *Tx) IsSigner(addr model.Address) bool {
	return utils.Contains(tx.signers, addr)
}

func (tx *Tx) Rent() Rent {
	return tx.store.rent
}

// Account returns a copy of addr as seen by this transaction.
func (tx *Tx) Account(ctx context.Context, addr model.Address) (*model.Account, error) {
	acc, err := tx.load(ctx, addr)
	if err != nil {
		return nil, err
	}

	return acc.Clone(), nil
}

func (tx *Tx) load(ctx context.Context, addr model.Address) (*model.Account, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if acc, ok := tx.accounts[addr]; ok {
		return acc, nil
	}

	acc, err := tx.store.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	tx.accounts[addr] = acc
	tx.before[addr] = acc.Lamports

	return acc, nil
}

// Transfer moves lamports out of a signer's account.
func (tx *Tx) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	if !tx.IsSigner(from) {
		return errors.Wrapf(ErrMissingSignature, "transfer from %s", from)
	}

	return tx.move(ctx, from, to, amount)
}

// Move debits an account owned by component without a signature, the way a
// component reclaims lamports from its own records.
func (tx *Tx) Move(ctx context.Context, component, from, to model.Address, amount uint64) error {
	src, err := tx.load(ctx, from)
	if err != nil {
		return err
	}
	if src.Owner != component {
		return errors.Wrapf(ErrNotOwner, "debit %s by %s", from, component)
	}

	return tx.move(ctx, from, to, amount)
}

func (tx *Tx) move(ctx context.Context, from, to model.Address, amount uint64) error {
	src, err := tx.load(ctx, from)
	if err != nil {
		return err
	}
	dst, err := tx.load(ctx, to)
	if err != nil {
		return err
	}
	if src.Lamports < amount {
		return errors.Wrapf(ErrInsufficientFunds, "%s holds %d lamports, needs %d", from, src.Lamports, amount)
	}
	if from == to {
		return nil
	}
	if dst.Lamports > math.MaxUint64-amount {
		return errors.Wrapf(ErrLamportsOverflow, "credit %d to %s", amount, to)
	}

	src.Lamports -= amount
	dst.Lamports += amount

	return nil
}

// Mint credits lamports out of thin air. Only the faucet uses it.
func (tx *Tx) Mint(ctx context.Context, to model.Address, amount uint64) error {
	dst, err := tx.load(ctx, to)
	if err != nil {
		return err
	}
	if dst.Lamports > math.MaxUint64-amount || tx.minted > math.MaxUint64-amount {
		return errors.Wrapf(ErrLamportsOverflow, "mint %d to %s", amount, to)
	}
	dst.Lamports += amount
	tx.minted += amount

	return nil
}

// CreateAccount allocates space zeroed bytes at addr owned by component, with
// payer funding the full storage cost. addr must either sign the transaction
// or be derived from seeds under component.
func (tx *Tx) CreateAccount(ctx context.Context, component, payer, addr model.Address, space int, seeds *address.SignerSeeds) error {
	if space < 0 || space > MaxAccountSize {
		return errors.Wrapf(ErrReallocTooLarge, "create %s with %d bytes", addr, space)
	}
	if seeds != nil {
		if err := address.Verify(addr, *seeds, component); err != nil {
			return err
		}
	} else if !tx.IsSigner(addr) {
		return errors.Wrapf(ErrMissingSignature, "create %s", addr)
	}

	acc, err := tx.load(ctx, addr)
	if err != nil {
		return err
	}
	if len(acc.Data) > 0 || !acc.Owner.IsZero() {
		return errors.Wrapf(ErrAccountInUse, "%s", addr)
	}

	cost := tx.Rent().MinimumBalance(space)
	if acc.Lamports < cost {
		if err := tx.Transfer(ctx, payer, addr, cost-acc.Lamports); err != nil {
			return err
		}
	}

	acc.Owner = component
	acc.Data = make([]byte, space)

	return nil
}

// Realloc resizes the data of an account owned by component, keeping the
// existing bytes up to the smaller of the two lengths.
func (tx *Tx) Realloc(ctx context.Context, component, addr model.Address, space int) error {
	acc, err := tx.owned(ctx, component, addr)
	if err != nil {
		return err
	}
	if space < 0 || space > MaxAccountSize || space-len(acc.Data) > MaxDataIncrease {
		return errors.Wrapf(ErrReallocTooLarge, "%s from %d to %d bytes", addr, len(acc.Data), space)
	}

	buf := arena.Wrap(acc.Data)
	buf.Resize(space)
	acc.Data = buf.Bytes()

	return nil
}

// WriteData copies data into an account owned by component at offset.
func (tx *Tx) WriteData(ctx context.Context, component, addr model.Address, offset int, data []byte) error {
	acc, err := tx.owned(ctx, component, addr)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(acc.Data) {
		return errors.Wrapf(ErrAccountDataTooSmall, "%s holds %d bytes, write needs %d", addr, len(acc.Data), offset+len(data))
	}
	copy(acc.Data[offset:], data)

	return nil
}

// CloseAccount drains every lamport of addr into dest and wipes its data.
// The account disappears from the ledger on commit.
func (tx *Tx) CloseAccount(ctx context.Context, component, addr, dest model.Address) error {
	acc, err := tx.owned(ctx, component, addr)
	if err != nil {
		return err
	}
	if err := tx.move(ctx, addr, dest, acc.Lamports); err != nil {
		return err
	}

	acc.Data = nil
	acc.Owner = model.Address{}

	return nil
}

func (tx *Tx) owned(ctx context.Context, component, addr model.Address) (*model.Account, error) {
	acc, err := tx.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != component {
		return nil, errors.Wrapf(ErrNotOwner, "%s is owned by %s, not %s", addr, acc.Owner, component)
	}

	return acc, nil
}

// Commit validates the overlay and writes it in a single batch.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	var in, out uint64
	for addr, acc := range tx.accounts {
		in += tx.before[addr]
		out += acc.Lamports

		if len(acc.Data) > 0 && !tx.Rent().IsExempt(acc.Lamports, len(acc.Data)) {
			return errors.Wrapf(ErrRentNotExempt, "%s holds %d lamports for %d bytes", addr, acc.Lamports, len(acc.Data))
		}
	}
	if in+tx.minted != out {
		return errors.Wrapf(ErrUnbalancedTx, "in %d + minted %d != out %d", in, tx.minted, out)
	}

	return tx.store.commit(ctx, tx.accounts)
}

// Discard drops every change made by the transaction.
func (tx *Tx) Discard() {
	tx.done = true
	tx.accounts = nil
	tx.before = nil
}
