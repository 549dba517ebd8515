// Package loader accumulates chunked payloads in derived records and forwards
// the reassembled payload to a downstream component in one atomic step.
package loader

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
)

// ProgramID owns every chunk holder record.
var ProgramID = model.MustParseAddress("ChUnQ7H46X5UeQJHVgZFBy3hGM95TwWsmvBRwQxVz3JG")

var (
	ErrDuplicateIndex     = errors.New("chunk with this index has already been loaded")
	ErrDataLengthMismatch = errors.New("sum of lengths of chunks does not match the expected length")
	ErrOwnershipMismatch  = errors.New("record owner does not match")
	ErrChunkTooLarge      = errors.New("chunk exceeds maximum length")
)

// AccountReader is satisfied by both the committed store and a live tx.
type AccountReader interface {
	Account(ctx context.Context, addr model.Address) (*model.Account, error)
}

type Loader struct {
	ID          model.Address
	invoker     host.Invoker
	maxChunkLen int
}

type Option func(*Loader)

// WithMaxChunkLen rejects chunks with more than n data bytes. Zero disables
// the limit.
func WithMaxChunkLen(n int) Option {
	return func(l *Loader) {
		l.maxChunkLen = n
	}
}

func WithProgramID(id model.Address) Option {
	return func(l *Loader) {
		l.ID = id
	}
}

func New(invoker host.Invoker, opts ...Option) *Loader {
	l := &Loader{
		ID:      ProgramID,
		invoker: invoker,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// FindChunkHolder derives the record address for (owner, handleID).
func (l *Loader) FindChunkHolder(owner model.Address, handleID uint32) (model.Address, error) {
	addr, _, err := address.FindChunkHolder(owner, handleID, l.ID)
	return addr, err
}

// FetchChunkHolder returns nil when the record does not exist.
func (l *Loader) FetchChunkHolder(ctx context.Context, r AccountReader, addr model.Address) (*model.ChunkHolder, error) {
	acc, err := r.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(acc.Data) == 0 {
		return nil, nil
	}

	return l.decode(addr, acc)
}

// loadChunkHolder reads an existing record, checking its type before
// interpreting any of its bytes.
func (l *Loader) loadChunkHolder(ctx context.Context, tx *ledger.Tx, addr model.Address) (*model.ChunkHolder, *model.Account, error) {
	acc, err := tx.Account(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	if len(acc.Data) == 0 {
		return nil, nil, errors.Wrapf(ledger.ErrAccountNotFound, "chunk holder %s", addr)
	}

	holder, err := l.decode(addr, acc)
	if err != nil {
		return nil, nil, err
	}

	return holder, acc, nil
}

func (l *Loader) decode(addr model.Address, acc *model.Account) (*model.ChunkHolder, error) {
	if acc.Owner != l.ID {
		return nil, errors.Wrapf(model.ErrTypeMismatch, "%s is owned by %s", addr, acc.Owner)
	}

	holder, err := model.DecodeChunkHolder(acc.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "chunk holder %s", addr)
	}

	return holder, nil
}

func requireSigner(tx *ledger.Tx, owner model.Address) error {
	if !tx.IsSigner(owner) {
		return errors.Wrapf(ledger.ErrMissingSignature, "owner %s", owner)
	}

	return nil
}

func requireOwner(holder *model.ChunkHolder, addr, owner model.Address) error {
	if holder.Owner != owner {
		return errors.Wrapf(ErrOwnershipMismatch, "chunk holder %s belongs to %s, not %s", addr, holder.Owner, owner)
	}

	return nil
}
