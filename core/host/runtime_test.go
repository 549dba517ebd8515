package host

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/stretchr/testify/require"
)

var (
	alice = model.Address{0xA1}
	bob   = model.Address{0xB0}
	echo  = model.Address{0xEC}
)

func newRuntime(t *testing.T) *Runtime {
	rt := NewRuntime(ledger.NewMemoryStore(ledger.DefaultRent()))
	require.NoError(t, rt.Execute(context.Background(), nil, func(ctx context.Context, tx *ledger.Tx) error {
		return tx.Mint(ctx, alice, 1000)
	}))
	return rt
}

func lamports(t *testing.T, rt *Runtime, addr model.Address) uint64 {
	acc, err := rt.Store().Account(context.Background(), addr)
	require.NoError(t, err)
	return acc.Lamports
}

func TestExecuteCommits(t *testing.T) {
	rt := newRuntime(t)

	err := rt.Execute(context.Background(), []model.Address{alice}, func(ctx context.Context, tx *ledger.Tx) error {
		return tx.Transfer(ctx, alice, bob, 100)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(900), lamports(t, rt, alice))
	require.Equal(t, uint64(100), lamports(t, rt, bob))
}

func TestExecuteRollsBackOnError(t *testing.T) {
	rt := newRuntime(t)
	boom := errors.New("boom")

	err := rt.Execute(context.Background(), []model.Address{alice}, func(ctx context.Context, tx *ledger.Tx) error {
		if err := tx.Transfer(ctx, alice, bob, 100); err != nil {
			return err
		}
		return boom
	})
	require.Equal(t, boom, err)
	require.Equal(t, uint64(1000), lamports(t, rt, alice))
	require.Equal(t, uint64(0), lamports(t, rt, bob))
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	rt := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := rt.Execute(ctx, nil, func(context.Context, *ledger.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestRegisterTwice(t *testing.T) {
	rt := newRuntime(t)
	noop := ComponentFunc(func(context.Context, *Call) error { return nil })

	require.NoError(t, rt.Register(echo, noop))
	require.ErrorIs(t, rt.Register(echo, noop), ErrComponentExists)
}

func TestInvoke(t *testing.T) {
	rt := newRuntime(t)
	var got *Call
	require.NoError(t, rt.Register(echo, ComponentFunc(func(_ context.Context, call *Call) error {
		got = call
		return nil
	})))

	metas := []model.AccountMeta{{Address: alice, IsSigner: true}, {Address: bob, IsWritable: true}}
	err := rt.Execute(context.Background(), []model.Address{alice}, func(ctx context.Context, tx *ledger.Tx) error {
		return rt.Invoke(ctx, tx, Instruction{Program: echo, Accounts: metas, Data: []byte("hi")})
	})
	require.NoError(t, err)
	require.Equal(t, echo, got.Program)
	require.Equal(t, metas, got.Accounts)
	require.Equal(t, []byte("hi"), got.Data)
}

func TestInvokeRejectsUnknownAndEscalation(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Register(echo, ComponentFunc(func(context.Context, *Call) error { return nil })))

	err := rt.Execute(context.Background(), []model.Address{alice}, func(ctx context.Context, tx *ledger.Tx) error {
		return rt.Invoke(ctx, tx, Instruction{Program: bob})
	})
	require.ErrorIs(t, err, ErrUnknownComponent)

	err = rt.Execute(context.Background(), []model.Address{alice}, func(ctx context.Context, tx *ledger.Tx) error {
		return rt.Invoke(ctx, tx, Instruction{Program: echo, Accounts: []model.AccountMeta{{Address: bob, IsSigner: true}}})
	})
	require.ErrorIs(t, err, ErrPrivilegeEscalation)
}

func TestInvokeDepthLimit(t *testing.T) {
	rt := newRuntime(t)
	depth := 0
	require.NoError(t, rt.Register(echo, ComponentFunc(func(ctx context.Context, call *Call) error {
		depth++
		return call.Invoker.Invoke(ctx, call.Tx, Instruction{Program: echo})
	})))

	err := rt.Execute(context.Background(), nil, func(ctx context.Context, tx *ledger.Tx) error {
		return rt.Invoke(ctx, tx, Instruction{Program: echo})
	})
	require.ErrorIs(t, err, ErrCallDepth)
	require.Equal(t, MaxInvokeDepth, depth)
}

func TestLedgerMonitorReport(t *testing.T) {
	rt := newRuntime(t)
	m := NewLedgerMonitor(rt.Store(), time.Millisecond)

	stats, err := m.Report(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Accounts)
	require.Equal(t, uint64(1000), stats.TotalLamports)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m.Start(ctx)
}

func TestInvokeGrantsOnlyForwardedSigners(t *testing.T) {
	rt := newRuntime(t)
	var signers [][]model.Address
	require.NoError(t, rt.Register(echo, ComponentFunc(func(_ context.Context, call *Call) error {
		signers = append(signers, call.Tx.Signers())
		return nil
	})))

	err := rt.Execute(context.Background(), []model.Address{alice, bob}, func(ctx context.Context, tx *ledger.Tx) error {
		if err := rt.Invoke(ctx, tx, Instruction{Program: echo}); err != nil {
			return err
		}
		ix := Instruction{Program: echo, Accounts: []model.AccountMeta{{Address: alice, IsSigner: true}, {Address: bob}}}
		if err := rt.Invoke(ctx, tx, ix); err != nil {
			return err
		}
		require.True(t, tx.IsSigner(bob))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, signers, 2)
	require.Empty(t, signers[0])
	require.Equal(t, []model.Address{alice}, signers[1])
}
