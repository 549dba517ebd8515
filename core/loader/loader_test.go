package loader

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/address"
	"github.com/pyropy/chunkloader/core/host"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/stretchr/testify/require"
)

var (
	recorderProgram = model.Address{0x7E, 0xC0}
	failingProgram  = model.Address{0xFA, 0x11}

	errDownstream = errors.New("downstream rejected payload")
)

type recorder struct {
	calls []host.Call
}

func (r *recorder) Invoke(_ context.Context, call *host.Call) error {
	r.calls = append(r.calls, *call)
	return nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *ledger.Store
	rt     *host.Runtime
	loader *Loader
	rec    *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	store := ledger.NewMemoryStore(ledger.DefaultRent())
	rt := host.NewRuntime(store)
	rec := &recorder{}
	require.NoError(t, rt.Register(recorderProgram, rec))
	require.NoError(t, rt.Register(failingProgram, host.ComponentFunc(func(context.Context, *host.Call) error {
		return errDownstream
	})))

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		rt:     rt,
		loader: New(rt, opts...),
		rec:    rec,
	}
}

func (f *fixture) user(b byte, lamports uint64) model.Address {
	f.t.Helper()
	addr := model.Address{0xAA, b}
	require.NoError(f.t, f.rt.Execute(f.ctx, nil, func(ctx context.Context, tx *ledger.Tx) error {
		return tx.Mint(ctx, addr, lamports)
	}))
	return addr
}

func (f *fixture) load(owner model.Address, handleID uint32, index uint8, data []byte) (model.Address, error) {
	var holder model.Address
	err := f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		var err error
		holder, err = f.loader.LoadChunk(ctx, tx, owner, handleID, model.Chunk{Index: index, Data: data})
		return err
	})
	return holder, err
}

func (f *fixture) dispatch(owner, holder, program model.Address, expected *uint16) (*Dispatch, error) {
	var d *Dispatch
	err := f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		var err error
		d, err = f.loader.PassToCPI(ctx, tx, owner, holder, program, nil, expected)
		return err
	})
	return d, err
}

func (f *fixture) close(owner, holder model.Address) (uint64, error) {
	var refund uint64
	err := f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		var err error
		refund, err = f.loader.CloseChunks(ctx, tx, owner, holder)
		return err
	})
	return refund, err
}

func (f *fixture) account(addr model.Address) *model.Account {
	f.t.Helper()
	acc, err := f.store.Account(f.ctx, addr)
	require.NoError(f.t, err)
	return acc
}

func (f *fixture) holder(addr model.Address) *model.ChunkHolder {
	f.t.Helper()
	h, err := f.loader.FetchChunkHolder(f.ctx, f.store, addr)
	require.NoError(f.t, err)
	return h
}

func u16(v uint16) *uint16 {
	return &v
}

func TestDispatchReassemblesOutOfOrderChunks(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 9, 1, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	_, err = f.load(owner, 9, 0, []byte{0x11, 0x22, 0x33})
	require.NoError(t, err)

	d, err := f.dispatch(owner, holder, recorderProgram, u16(5))
	require.NoError(t, err)

	require.Len(t, f.rec.calls, 1)
	require.Equal(t, []byte{0x11, 0x22, 0x33, 0xAA, 0xBB}, f.rec.calls[0].Data)
	require.Equal(t, 5, d.Length)
	require.Equal(t, 2, d.Chunks)
	require.Nil(t, f.holder(holder))
	require.True(t, f.account(holder).IsEmpty())
}

func TestRoundTripAnySubmissionOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 20; round++ {
		f := newFixture(t)
		owner := f.user(1, 10_000_000_000)

		n := 1 + rng.Intn(12)
		chunks := make([][]byte, n)
		var want []byte
		for i := range chunks {
			chunks[i] = make([]byte, rng.Intn(300))
			rng.Read(chunks[i])
			want = append(want, chunks[i]...)
		}

		var holder model.Address
		for _, i := range rng.Perm(n) {
			var err error
			holder, err = f.load(owner, uint32(round), uint8(i), chunks[i])
			require.NoError(t, err)
		}

		_, err := f.dispatch(owner, holder, recorderProgram, u16(uint16(len(want))))
		require.NoError(t, err)
		require.Len(t, f.rec.calls, 1)
		require.True(t, bytes.Equal(want, f.rec.calls[0].Data), "round %d payload differs", round)
	}
}

func TestSpaceAccountingAfterEachAppend(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 10_000_000_000)
	rent := f.store.Rent()

	want := model.HeaderSpace
	for i, size := range []int{0, 10, 943, 1, 500} {
		chunk := model.Chunk{Index: uint8(10 - i), Data: bytes.Repeat([]byte{byte(i)}, size)}
		holder, err := f.load(owner, 3, chunk.Index, chunk.Data)
		require.NoError(t, err)

		want += chunk.Space()
		acc := f.account(holder)
		require.Len(t, acc.Data, want)
		require.Equal(t, rent.MinimumBalance(want), acc.Lamports)
	}
}

func TestStorageCostPaidByOwner(t *testing.T) {
	f := newFixture(t)
	const funds = 1_000_000_000
	owner := f.user(1, funds)

	holder, err := f.load(owner, 1, 0, []byte("abc"))
	require.NoError(t, err)

	held := f.account(holder).Lamports
	require.Equal(t, uint64(funds)-held, f.account(owner).Lamports)

	refund, err := f.close(owner, holder)
	require.NoError(t, err)
	require.Equal(t, held, refund)
	require.Equal(t, uint64(funds), f.account(owner).Lamports)
}

func TestLengthMismatchLeavesRecord(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 1, 0, []byte("hello"))
	require.NoError(t, err)
	before := f.account(holder)

	for _, expected := range []uint16{0, 4, 6, 65535} {
		_, err = f.dispatch(owner, holder, recorderProgram, u16(expected))
		require.ErrorIs(t, err, ErrDataLengthMismatch)
	}

	require.Empty(t, f.rec.calls)
	require.Equal(t, before, f.account(holder))

	// no expectation skips the check
	_, err = f.dispatch(owner, holder, recorderProgram, nil)
	require.NoError(t, err)
}

func TestDownstreamFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 1, 0, []byte("payload"))
	require.NoError(t, err)
	before := f.account(holder)
	ownerBefore := f.account(owner).Lamports

	_, err = f.dispatch(owner, holder, failingProgram, u16(7))
	require.Equal(t, errDownstream, err)

	require.Equal(t, before, f.account(holder))
	require.Equal(t, ownerBefore, f.account(owner).Lamports)
}

func TestDispatchUnknownComponent(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 1, 0, []byte("x"))
	require.NoError(t, err)

	_, err = f.dispatch(owner, holder, model.Address{0x01}, nil)
	require.ErrorIs(t, err, host.ErrUnknownComponent)
	require.NotNil(t, f.holder(holder))
}

func TestDispatchForwardsAccounts(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)
	other := model.Address{0x0B}

	holder, err := f.load(owner, 1, 0, []byte("x"))
	require.NoError(t, err)

	metas := []model.AccountMeta{
		{Address: owner, IsSigner: true, IsWritable: true},
		{Address: other, IsWritable: true},
	}
	err = f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := f.loader.PassToCPI(ctx, tx, owner, holder, recorderProgram, metas, nil)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, metas, f.rec.calls[0].Accounts)
}

func TestDispatchCannotForgeSigner(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 1, 0, []byte("x"))
	require.NoError(t, err)

	metas := []model.AccountMeta{{Address: model.Address{0x0B}, IsSigner: true}}
	err = f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := f.loader.PassToCPI(ctx, tx, owner, holder, recorderProgram, metas, nil)
		return err
	})
	require.ErrorIs(t, err, host.ErrPrivilegeEscalation)
	require.NotNil(t, f.holder(holder))
}

func TestCloseThenLoadStartsFresh(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 4, 0, []byte("old"))
	require.NoError(t, err)
	_, err = f.close(owner, holder)
	require.NoError(t, err)
	require.Nil(t, f.holder(holder))

	again, err := f.load(owner, 4, 0, []byte("new"))
	require.NoError(t, err)
	require.Equal(t, holder, again)

	h := f.holder(again)
	require.Equal(t, []model.Chunk{{Index: 0, Data: []byte("new")}}, h.Chunks)
	require.Len(t, f.account(again).Data, model.HeaderSpace+h.Chunks[0].Space())
}

func TestDuplicateIndexRejected(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.load(owner, 1, 2, []byte("first"))
	require.NoError(t, err)
	before := f.account(holder)

	_, err = f.load(owner, 1, 2, []byte("second"))
	require.ErrorIs(t, err, ErrDuplicateIndex)
	require.Equal(t, before, f.account(holder))
}

func TestOnlyOwnerMayDispatchOrClose(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)
	mallory := f.user(2, 1_000_000_000)

	holder, err := f.load(owner, 1, 0, []byte("mine"))
	require.NoError(t, err)

	_, err = f.dispatch(mallory, holder, recorderProgram, nil)
	require.ErrorIs(t, err, ErrOwnershipMismatch)
	_, err = f.close(mallory, holder)
	require.ErrorIs(t, err, ErrOwnershipMismatch)

	// the owner must actually sign
	err = f.rt.Execute(f.ctx, []model.Address{mallory}, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := f.loader.CloseChunks(ctx, tx, owner, holder)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrMissingSignature)

	require.NotNil(t, f.holder(holder))
}

func TestSameHandleDifferentOwnersDoNotCollide(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 1_000_000_000)
	b := f.user(2, 1_000_000_000)

	ha, err := f.load(a, 1, 0, []byte("a"))
	require.NoError(t, err)
	hb, err := f.load(b, 1, 0, []byte("b"))
	require.NoError(t, err)

	require.NotEqual(t, ha, hb)
	require.Equal(t, a, f.holder(ha).Owner)
	require.Equal(t, b, f.holder(hb).Owner)
}

func TestInsufficientFundsCreatesNothing(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 10)

	holder, err := f.loader.FindChunkHolder(owner, 1)
	require.NoError(t, err)

	_, err = f.load(owner, 1, 0, []byte("x"))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Nil(t, f.holder(holder))
	require.Equal(t, uint64(10), f.account(owner).Lamports)
}

func TestChunkTooLarge(t *testing.T) {
	f := newFixture(t, WithMaxChunkLen(4))
	owner := f.user(1, 1_000_000_000)

	_, err := f.load(owner, 1, 0, []byte("12345"))
	require.ErrorIs(t, err, ErrChunkTooLarge)
	_, err = f.load(owner, 1, 0, []byte("1234"))
	require.NoError(t, err)
}

func TestDispatchMissingRecord(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	holder, err := f.loader.FindChunkHolder(owner, 77)
	require.NoError(t, err)

	_, err = f.dispatch(owner, holder, recorderProgram, nil)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = f.close(owner, holder)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

type otherRecord struct {
	owner model.Address
	body  []byte
}

func (r otherRecord) Tag() byte {
	return 2
}

func (r otherRecord) MarshalBinary() ([]byte, error) {
	return append(r.owner[:], r.body...), nil
}

func TestLoadRejectsForeignTag(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)

	seeds := address.ChunkHolderSeeds(owner, 5)
	holder, nonce, err := address.FindAddress(seeds, f.loader.ID)
	require.NoError(t, err)

	rec := otherRecord{owner: owner, body: []byte("not a chunk holder")}
	err = f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		return InitOrRealloc(ctx, tx, f.loader.ID, holder, 64, rec, owner, address.SignerSeeds{Seeds: seeds, Nonce: nonce}, false)
	})
	require.NoError(t, err)

	_, err = f.load(owner, 5, 0, []byte("x"))
	require.ErrorIs(t, err, model.ErrTypeMismatch)

	_, err = f.dispatch(owner, holder, recorderProgram, nil)
	require.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestComponentCannotSpendUnforwardedOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)
	thief := model.Address{0x7F}
	greedy := model.Address{0x6E, 0xED}

	require.NoError(t, f.rt.Register(greedy, host.ComponentFunc(func(ctx context.Context, call *host.Call) error {
		return call.Tx.Transfer(ctx, owner, thief, 500_000_000)
	})))

	holder, err := f.load(owner, 1, 0, []byte("x"))
	require.NoError(t, err)
	before := f.account(holder)
	ownerBefore := f.account(owner).Lamports

	_, err = f.dispatch(owner, holder, greedy, nil)
	require.ErrorIs(t, err, ledger.ErrMissingSignature)

	require.Equal(t, before, f.account(holder))
	require.Equal(t, ownerBefore, f.account(owner).Lamports)
	require.Zero(t, f.account(thief).Lamports)

	// forwarding the owner as signer grants the authority
	metas := []model.AccountMeta{{Address: owner, IsSigner: true, IsWritable: true}}
	err = f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		_, err := f.loader.PassToCPI(ctx, tx, owner, holder, greedy, metas, nil)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), f.account(thief).Lamports)
}

func TestRefundIncludesCreditsFromComponent(t *testing.T) {
	f := newFixture(t)
	owner := f.user(1, 1_000_000_000)
	tipper := model.Address{0x71, 0xEE}

	// moves 1000 lamports from the forwarded signer into the second account
	require.NoError(t, f.rt.Register(tipper, host.ComponentFunc(func(ctx context.Context, call *host.Call) error {
		return call.Tx.Transfer(ctx, call.Accounts[0].Address, call.Accounts[1].Address, 1000)
	})))

	holder, err := f.load(owner, 1, 0, []byte("x"))
	require.NoError(t, err)
	stored := f.account(holder).Lamports
	ownerBefore := f.account(owner).Lamports

	metas := []model.AccountMeta{
		{Address: owner, IsSigner: true, IsWritable: true},
		{Address: holder, IsWritable: true},
	}
	var d *Dispatch
	err = f.rt.Execute(f.ctx, []model.Address{owner}, func(ctx context.Context, tx *ledger.Tx) error {
		var err error
		d, err = f.loader.PassToCPI(ctx, tx, owner, holder, tipper, metas, nil)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, stored+1000, d.Refund)
	require.Equal(t, ownerBefore+stored, f.account(owner).Lamports)
	require.Nil(t, f.holder(holder))
}

func TestInsufficientFundsForGrowthLeavesRecord(t *testing.T) {
	f := newFixture(t)
	rent := ledger.DefaultRent()
	first := model.Chunk{Index: 0, Data: []byte{1, 2, 3}}
	owner := f.user(1, rent.MinimumBalance(model.HeaderSpace+first.Space())+10)

	holder, err := f.load(owner, 1, first.Index, first.Data)
	require.NoError(t, err)
	before := f.account(holder)
	require.Equal(t, uint64(10), f.account(owner).Lamports)

	_, err = f.load(owner, 1, 1, make([]byte, 100))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	after := f.account(holder)
	require.Equal(t, before.Data, after.Data)
	require.Equal(t, before.Lamports, after.Lamports)
	require.Equal(t, uint64(10), f.account(owner).Lamports)
	require.Equal(t, []byte{1, 2, 3}, f.holder(holder).JoinChunks())
}
