// Package ledger keeps accounts in a datastore and applies changes to them in
// all-or-nothing transactions.
package ledger

import (
	"context"
	"encoding/json"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
)

const accountsPrefix = "/accounts"

var ErrAccountNotFound = errors.New("account not found")

type Store struct {
	ds   ds.Batching
	rent Rent
}

// Stats summarises the ledger contents.
type Stats struct {
	Accounts      int
	DataBytes     int
	TotalLamports uint64
}

func NewStore(d ds.Batching, rent Rent) *Store {
	return &Store{
		ds:   d,
		rent: rent,
	}
}

// NewMemoryStore returns a store backed by an in-memory map datastore.
func NewMemoryStore(rent Rent) *Store {
	return NewStore(dssync.MutexWrap(ds.NewMapDatastore()), rent)
}

// OpenLevelDB opens (or creates) a leveldb backed store at path.
func OpenLevelDB(path string, rent Rent) (*Store, error) {
	d, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger at %s", path)
	}

	return NewStore(d, rent), nil
}

func (s *Store) Rent() Rent {
	return s.rent
}

func accountKey(addr model.Address) ds.Key {
	return ds.NewKey(accountsPrefix).ChildString(addr.String())
}

// Account reads the committed state of addr. Missing accounts come back
// empty, the way the host presents never-funded addresses.
func (s *Store) Account(ctx context.Context, addr model.Address) (*model.Account, error) {
	b, err := s.ds.Get(ctx, accountKey(addr))
	if errors.Is(err, ds.ErrNotFound) {
		return &model.Account{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read account %s", addr)
	}

	var acc model.Account
	if err := json.Unmarshal(b, &acc); err != nil {
		return nil, errors.Wrapf(err, "decode account %s", addr)
	}

	return &acc, nil
}

// Exists reports whether addr holds lamports or data.
func (s *Store) Exists(ctx context.Context, addr model.Address) (bool, error) {
	return s.ds.Has(ctx, accountKey(addr))
}

// Begin starts a transaction on behalf of signers.
func (s *Store) Begin(signers ...model.Address) *Tx {
	return newTx(s, signers)
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	res, err := s.ds.Query(ctx, dsq.Query{Prefix: accountsPrefix})
	if err != nil {
		return stats, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return stats, r.Error
		}

		var acc model.Account
		if err := json.Unmarshal(r.Value, &acc); err != nil {
			return stats, errors.Wrapf(err, "decode %s", r.Key)
		}
		stats.Accounts++
		stats.DataBytes += len(acc.Data)
		stats.TotalLamports += acc.Lamports
	}

	return stats, nil
}

func (s *Store) Close() error {
	return s.ds.Close()
}

func (s *Store) commit(ctx context.Context, accounts map[model.Address]*model.Account) error {
	batch, err := s.ds.Batch(ctx)
	if err != nil {
		return err
	}

	for addr, acc := range accounts {
		k := accountKey(addr)
		if acc.IsEmpty() {
			if err := batch.Delete(ctx, k); err != nil {
				return err
			}
			continue
		}

		b, err := json.Marshal(acc)
		if err != nil {
			return errors.Wrapf(err, "encode account %s", addr)
		}
		if err := batch.Put(ctx, k, b); err != nil {
			return err
		}
	}

	return batch.Commit(ctx)
}
